package main

import (
	"fmt"

	"example.com/multipackage/internal/common"
	"example.com/multipackage/pkg/client"
	"example.com/multipackage/pkg/server"
)

func setupConfig() common.Config {
	return common.Config{
		Host: "localhost",
		Port: 8080,
	}
}

func main() {
	fmt.Println("Starting multipackage application")

	cfg := setupConfig()
	srv := server.New(cfg)
	c := client.New(cfg.Host, cfg.Port)
	c.UseConfig(srv.GetConfig())

	fmt.Printf("Server: %v\n", srv)
	fmt.Printf("Client: %s\n", c.GetURL())
}
