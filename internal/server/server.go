package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"maintenance/internal/auth"
	"maintenance/internal/clock"
	"maintenance/internal/domain/errors"
	"maintenance/internal/domain/models"
	"maintenance/internal/service"

	"github.com/gin-gonic/gin"
)

type TaskAPI struct {
	httpSrv *http.Server
	users   *service.Users
	tasks   *service.Tasks
	pinger  service.Pinger
	cfg     *Config
	log     *slog.Logger
}

type options struct {
	clock clock.Clock
	log   *slog.Logger
}

type Option func(*options)

func WithClock(clk clock.Clock) Option {
	return func(o *options) { o.clock = clk }
}

func WithLogger(log *slog.Logger) Option {
	return func(o *options) { o.log = log }
}

// NewTaskAPI wires the services over the given repositories. When the user
// repository can report its health it also backs GET /health.
func NewTaskAPI(userRepo service.UserRepository, taskRepo service.TaskRepository, cfg *Config, opts ...Option) (*TaskAPI, error) {
	if userRepo == nil || taskRepo == nil || cfg == nil {
		return nil, errors.ErrInternalServer
	}

	o := options{clock: clock.Real(), log: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(&o)
	}

	issuer := auth.NewIssuer(userRepo, auth.Options{
		Secret:     cfg.JWTSecret,
		TokenTTL:   cfg.TokenTTL,
		BcryptCost: cfg.BcryptCost,
	}, o.clock)

	api := &TaskAPI{
		httpSrv: &http.Server{
			Addr:              cfg.Address(),
			ReadHeaderTimeout: 10 * time.Second,
		},
		users: service.NewUsers(userRepo, issuer, o.clock, o.log),
		tasks: service.NewTasks(taskRepo, userRepo, o.clock, o.log),
		cfg:   cfg,
		log:   o.log,
	}
	if p, ok := userRepo.(service.Pinger); ok {
		api.pinger = p
	}

	api.configRoutes()
	return api, nil
}

func (api *TaskAPI) Start() error {
	api.log.Info("http server listening", "addr", api.httpSrv.Addr)
	return api.httpSrv.ListenAndServe()
}

func (api *TaskAPI) Shutdown(ctx context.Context) error {
	return api.httpSrv.Shutdown(ctx)
}

func (api *TaskAPI) configRoutes() {
	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.Use(gin.Recovery(), RequestLogger(api.log))
	if mw := CORS(api.cfg.AllowedOrigins); mw != nil {
		router.Use(mw)
	}
	router.Use(GzipRequestDecompress(), GzipResponseCompress())

	router.NoMethod(func(ctx *gin.Context) {
		ctx.JSON(http.StatusMethodNotAllowed, gin.H{"error": "method not allowed"})
	})
	router.NoRoute(func(ctx *gin.Context) {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})

	router.GET("/health", api.health)

	users := router.Group("/users")
	{
		users.POST("/register", api.register)
		users.POST("/login", api.login)

		authed := users.Group("", api.authenticate())
		authed.GET("/me", api.me)
		authed.GET("", api.listUsers)
		authed.PUT("/:userID/role", api.changeRole)
		authed.DELETE("/:userID", api.deleteUser)
	}

	tasks := router.Group("/tasks", api.authenticate())
	{
		tasks.GET("", api.listTasks)
		tasks.POST("", api.createTask)
		tasks.GET("/:taskID", api.getTask)
		tasks.PUT("/:taskID", api.updateTask)
		tasks.DELETE("/:taskID", api.deleteTask)
		tasks.PUT("/:taskID/assign", api.assignTask)
		tasks.POST("/:taskID/accept", api.acceptTask)
	}

	api.httpSrv.Handler = router
}

func (api *TaskAPI) health(ctx *gin.Context) {
	if api.pinger != nil {
		if err := api.pinger.Ping(ctx.Request.Context()); err != nil {
			api.log.Warn("health check failed", "error", err)
			ctx.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// bindJSON decodes and validates the body. It returns false when a response
// has already been written.
func bindJSON(ctx *gin.Context, req interface{}) bool {
	if err := ctx.ShouldBindJSON(req); err != nil {
		ctx.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": errors.ErrBadRequest.Error()})
		return false
	}
	return validateRequest(ctx, req)
}

func (api *TaskAPI) register(ctx *gin.Context) {
	var req models.RegisterRequest
	if !bindJSON(ctx, &req) {
		return
	}

	user, err := api.users.Register(ctx.Request.Context(), req)
	if err != nil {
		api.writeError(ctx, err)
		return
	}

	ctx.JSON(http.StatusCreated, gin.H{
		"message": "user created",
		"user":    user,
	})
}

func (api *TaskAPI) login(ctx *gin.Context) {
	var req models.LoginRequest
	if !bindJSON(ctx, &req) {
		return
	}

	session, err := api.users.Login(ctx.Request.Context(), req)
	if err != nil {
		api.writeError(ctx, err)
		return
	}

	maxAge := int(time.Until(session.ExpiresAt).Seconds())
	if maxAge < 1 {
		maxAge = int(api.cfg.TokenTTL.Seconds())
	}
	ctx.SetSameSite(http.SameSiteLaxMode)
	ctx.SetCookie(tokenCookieName, session.Token, maxAge, "/", "", false, true)
	ctx.JSON(http.StatusOK, session)
}

func (api *TaskAPI) me(ctx *gin.Context) {
	user, err := api.users.Me(ctx.Request.Context(), callerFrom(ctx))
	if err != nil {
		api.writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, user)
}

func (api *TaskAPI) listUsers(ctx *gin.Context) {
	users, err := api.users.List(ctx.Request.Context(), callerFrom(ctx))
	if err != nil {
		api.writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"users": users})
}

func (api *TaskAPI) changeRole(ctx *gin.Context) {
	var req models.UpdateRoleRequest
	if !bindJSON(ctx, &req) {
		return
	}

	user, err := api.users.ChangeRole(ctx.Request.Context(), callerFrom(ctx), ctx.Param("userID"), req.Role)
	if err != nil {
		api.writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, user)
}

func (api *TaskAPI) deleteUser(ctx *gin.Context) {
	if err := api.users.Delete(ctx.Request.Context(), callerFrom(ctx), ctx.Param("userID")); err != nil {
		api.writeError(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

func (api *TaskAPI) listTasks(ctx *gin.Context) {
	var q models.TaskQuery
	if err := ctx.ShouldBindQuery(&q); err != nil {
		api.writeError(ctx, errors.ErrInvalidPagination)
		return
	}

	page, err := api.tasks.List(ctx.Request.Context(), callerFrom(ctx), q)
	if err != nil {
		api.writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, page)
}

func (api *TaskAPI) createTask(ctx *gin.Context) {
	var req models.CreateTaskRequest
	if !bindJSON(ctx, &req) {
		return
	}

	task, err := api.tasks.Create(ctx.Request.Context(), callerFrom(ctx), req)
	if err != nil {
		api.writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, task)
}

func (api *TaskAPI) getTask(ctx *gin.Context) {
	task, err := api.tasks.Get(ctx.Request.Context(), callerFrom(ctx), ctx.Param("taskID"))
	if err != nil {
		api.writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, task)
}

func (api *TaskAPI) updateTask(ctx *gin.Context) {
	var req models.UpdateTaskRequest
	if !bindJSON(ctx, &req) {
		return
	}

	task, err := api.tasks.Update(ctx.Request.Context(), callerFrom(ctx), ctx.Param("taskID"), req)
	if err != nil {
		api.writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, task)
}

func (api *TaskAPI) deleteTask(ctx *gin.Context) {
	if err := api.tasks.Delete(ctx.Request.Context(), callerFrom(ctx), ctx.Param("taskID")); err != nil {
		api.writeError(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

func (api *TaskAPI) assignTask(ctx *gin.Context) {
	var req models.AssignTaskRequest
	if !bindJSON(ctx, &req) {
		return
	}

	task, err := api.tasks.Assign(ctx.Request.Context(), callerFrom(ctx), ctx.Param("taskID"), req)
	if err != nil {
		api.writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, task)
}

func (api *TaskAPI) acceptTask(ctx *gin.Context) {
	task, err := api.tasks.Accept(ctx.Request.Context(), callerFrom(ctx), ctx.Param("taskID"))
	if err != nil {
		api.writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, task)
}
