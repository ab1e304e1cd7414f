package server

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/davgate/server/handler/webdav"
	"github.com/xxxsen/davgate/server/middleware"
)

func init() {
	gin.SetMode(gin.ReleaseMode)
}

type Server struct {
	c      *config
	bind   string
	engine *gin.Engine
}

func New(bind string, opts ...Option) (*Server, error) {
	c := applyOpts(opts...)
	if c.adapter == nil {
		return nil, fmt.Errorf("no adapter found")
	}
	svr := &Server{c: c, bind: bind}
	engine := gin.New()
	engine.Use(gin.Recovery(), middleware.TryAuthMiddleware(c.userMap))
	svr.initAPI(engine)
	svr.engine = engine
	return svr, nil
}

func (s *Server) initAPI(engine *gin.Engine) {
	davRouter := engine.Group(s.c.davRoot, middleware.MustAuthMiddleware())
	{
		davHandler := webdav.NewWebdavHandler(s.c.adapter,
			webdav.WithPrefix(davRouter.BasePath()),
			webdav.WithCompress(s.c.enableCompress),
			webdav.WithPrettyXML(s.c.prettyXML),
			webdav.WithPropfindInfinity(s.c.propfindInfinity),
			webdav.WithRequestTimeout(s.c.requestTimeout),
			webdav.WithLockTimeout(s.c.defaultLockTimeout, s.c.maxLockTimeout),
		)
		for _, method := range webdav.AllowMethods {
			davRouter.Handle(method, "/*all", davHandler.Handler)
		}
	}
}

func (s *Server) Run() error {
	return s.engine.Run(s.bind)
}
