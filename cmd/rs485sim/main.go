package main

import (
	"github.com/aaronwong1989/gors485/comm/logging"
	"github.com/aaronwong1989/gors485/comm/yml_config"
)

var log = logging.GetDefaultLogger()

func main() {
	StartServer(yml_config.CreateYamlFactory("rs485sim"))
}
