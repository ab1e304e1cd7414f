package main

import (
	"fmt"
	"log"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/idgen"
	"github.com/xxxsen/common/logger"
	"go.uber.org/zap"

	"github.com/xxxsen/davgate/config"
	"github.com/xxxsen/davgate/dav"
	"github.com/xxxsen/davgate/dav/memdav"
	"github.com/xxxsen/davgate/dav/sqldav"
	"github.com/xxxsen/davgate/db"
	"github.com/xxxsen/davgate/server"
)

func newRoot() *cobra.Command {
	var configFile string
	var useMem bool
	rootCmd := &cobra.Command{
		Use:   "davgate",
		Short: "WebDAV server over a pluggable resource backend",
	}
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "start the webdav server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configFile, useMem)
		},
	}
	serveCmd.Flags().StringVarP(&configFile, "config", "c", "./config.json", "config file")
	serveCmd.Flags().BoolVar(&useMem, "mem", false, "serve from the in-memory backend")
	rootCmd.AddCommand(serveCmd)
	return rootCmd
}

func runServe(configFile string, useMem bool) error {
	c, err := config.Parse(configFile)
	if err != nil {
		return fmt.Errorf("parse config failed, err:%w", err)
	}
	logitem := c.LogInfo
	logkit := logger.Init(logitem.File, logitem.Level, int(logitem.FileCount), int(logitem.FileSize), int(logitem.KeepDays), logitem.Console)
	if err := idgen.Init(1); err != nil {
		logkit.Fatal("init idgen fail", zap.Error(err))
	}
	logkit.Info("recv config", zap.Any("config", c))
	adapter, err := buildAdapter(c, useMem)
	if err != nil {
		logkit.Fatal("init adapter fail", zap.Error(err))
	}
	logkit.Info("current dav feature")
	logkit.Info("-- backend", zap.Bool("mem", useMem), zap.String("db_file", c.DBFile))
	logkit.Info("-- compress", zap.Bool("enable", c.Dav.Compress))
	logkit.Info("-- propfind infinity", zap.Bool("enable", c.Dav.PropfindInfinity))
	logkit.Info("-- max body size", zap.String("size", humanize.IBytes(uint64(c.Dav.MaxBodySize))))
	svr, err := server.New(c.Bind,
		server.WithAdapter(adapter),
		server.WithUser(c.UserInfo),
		server.WithDavRoot(c.Dav.Root),
		server.WithCompress(c.Dav.Compress),
		server.WithPrettyXML(c.Dav.PrettyXML),
		server.WithPropfindInfinity(c.Dav.PropfindInfinity),
		server.WithRequestTimeout(time.Duration(c.Dav.RequestTimeoutSec)*time.Second),
		server.WithLockTimeout(
			time.Duration(c.Dav.DefaultLockTimeoutSec)*time.Second,
			time.Duration(c.Dav.MaxLockTimeoutSec)*time.Second,
		),
	)
	if err != nil {
		logkit.Fatal("init server fail", zap.Error(err))
	}
	logkit.Info("init server succ, start it...", zap.String("bind", c.Bind))
	return svr.Run()
}

func buildAdapter(c *config.Config, useMem bool) (dav.IAdapter, error) {
	if useMem {
		return memdav.New(), nil
	}
	if err := db.InitDB(c.DBFile); err != nil {
		return nil, fmt.Errorf("init dav db failed, err:%w", err)
	}
	return sqldav.New(db.GetClient())
}

func main() {
	if err := newRoot().Execute(); err != nil {
		log.Printf("exec cmd failed, err:%v", err)
	}
}
