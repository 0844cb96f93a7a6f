package yml_config

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/aaronwong1989/gors485/comm/logging"
)

var log = logging.GetDefaultLogger()

type YmlConfig interface {
	ConfigFileChangeListen()
	OnChange(fn func())
	SetDefault(key string, value interface{})
	GetString(key string) string
	GetBool(key string) bool
	GetInt(key string) int
	GetInt32(key string) int32
	GetFloat64(key string) float64
	GetDuration(key string) time.Duration
	ConfigFileUsed() string
}

// CreateYamlFactory 加载 yaml 配置。
// name 可以是文件路径，也可以是不带扩展名的配置名，此时依次在 .、./config、./configs、$HOME 下查找 name.yaml；
// 环境变量 <NAME>_CONF_PATH 优先。配置文件缺失时返回只含默认值的空配置。
func CreateYamlFactory(name string) YmlConfig {
	v := viper.New()
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))

	envKey := strings.ToUpper(strings.ReplaceAll(base, "-", "_")) + "_CONF_PATH"
	path := os.Getenv(envKey)
	if path == "" && (filepath.Ext(name) != "" || strings.ContainsRune(name, os.PathSeparator)) {
		path = name
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(base)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("./configs")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
	}

	v.SetEnvPrefix(strings.ToUpper(strings.ReplaceAll(base, "-", "_")))
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		log.Warnf("[%-9s] read %s failed, using defaults: %v", "Conf", name, err)
	} else {
		log.Infof("[%-9s] path=%s", "Conf", v.ConfigFileUsed())
	}
	return &ymlConfig{viper: v}
}

type ymlConfig struct {
	viper     *viper.Viper
	mu        sync.RWMutex
	listeners []func()
}

// ConfigFileChangeListen 监听配置文件变化，变化后通知 OnChange 注册的回调
func (y *ymlConfig) ConfigFileChangeListen() {
	y.viper.OnConfigChange(func(e fsnotify.Event) {
		if e.Op&fsnotify.Write == 0 && e.Op&fsnotify.Create == 0 {
			return
		}
		log.Infof("[%-9s] config file changed: %s", "Conf", e.Name)
		y.mu.RLock()
		defer y.mu.RUnlock()
		for _, fn := range y.listeners {
			fn()
		}
	})
	y.viper.WatchConfig()
}

func (y *ymlConfig) OnChange(fn func()) {
	y.mu.Lock()
	defer y.mu.Unlock()
	y.listeners = append(y.listeners, fn)
}

func (y *ymlConfig) SetDefault(key string, value interface{}) {
	y.viper.SetDefault(key, value)
}

func (y *ymlConfig) GetString(key string) string {
	return y.viper.GetString(key)
}

func (y *ymlConfig) GetBool(key string) bool {
	return y.viper.GetBool(key)
}

func (y *ymlConfig) GetInt(key string) int {
	return y.viper.GetInt(key)
}

func (y *ymlConfig) GetInt32(key string) int32 {
	return y.viper.GetInt32(key)
}

func (y *ymlConfig) GetFloat64(key string) float64 {
	return y.viper.GetFloat64(key)
}

func (y *ymlConfig) GetDuration(key string) time.Duration {
	return y.viper.GetDuration(key)
}

func (y *ymlConfig) ConfigFileUsed() string {
	return y.viper.ConfigFileUsed()
}
