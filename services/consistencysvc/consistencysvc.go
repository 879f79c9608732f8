package main

import (
	"flag"
	"fmt"

	"github.com/zeromicro/go-zero/core/conf"
	"github.com/zeromicro/go-zero/rest"

	"github.com/txsubstrate/platform/services/consistencysvc/internal/config"
	"github.com/txsubstrate/platform/services/consistencysvc/internal/handler"
	"github.com/txsubstrate/platform/services/consistencysvc/internal/svc"
)

var configFile = flag.String("f", "etc/consistencysvc.yaml", "the config file")

func main() {
	flag.Parse()

	var c config.Config
	conf.MustLoad(*configFile, &c)

	server := rest.MustNewServer(c.RestConf, rest.WithCors("*"))
	defer server.Stop()

	ctx := svc.NewServiceContext(c)
	handler.RegisterHandlers(server, ctx)

	fmt.Printf("Starting consistencysvc at %s:%d...\n", c.Host, c.Port)
	server.Start()
}
