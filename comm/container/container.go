package container

import (
	"strings"
	"sync"
)

// CreateContainersFactory 创建一个独立的键值容器
func CreateContainersFactory() *Containers {
	return &Containers{}
}

// Containers 并发安全的键值容器，模拟设备用它保存各地址的内存内容
type Containers struct {
	sMap sync.Map
}

// Store 1.写入，键已存在时覆盖
func (c *Containers) Store(key string, value interface{}) {
	c.sMap.Store(key, value)
}

// Get 2.传递键，从容器获取值
func (c *Containers) Get(key string) interface{} {
	if value, exists := c.KeyIsExists(key); exists {
		return value
	}
	return nil
}

// KeyIsExists 3.判断键是否被注册
func (c *Containers) KeyIsExists(key string) (interface{}, bool) {
	return c.sMap.Load(key)
}

// FuzzyDelete 按照键的前缀模糊删除容器中注册的内容，返回删除个数
func (c *Containers) FuzzyDelete(keyPre string) (n int) {
	c.sMap.Range(func(key, value interface{}) bool {
		if keyName, ok := key.(string); ok {
			if strings.HasPrefix(keyName, keyPre) {
				c.sMap.Delete(keyName)
				n++
			}
		}
		return true
	})
	return
}

// Count 当前键数量
func (c *Containers) Count() (n int) {
	c.sMap.Range(func(_, _ interface{}) bool {
		n++
		return true
	})
	return
}
