package main

import (
	"context"
	"errors"
	"fmt"
	"homejobs/src/apperr"
	"homejobs/src/boot"
	"homejobs/src/config"
	"homejobs/src/db"
	"homejobs/src/engine"
	"homejobs/src/middlewares"
	"homejobs/src/types"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path"
	"path/filepath"
	"syscall"
	"time"

	"github.com/covalenthq/lumberjack"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const (
	apiPrefix string = "/api/v1"
)

var bookableDate validator.Func = func(fl validator.FieldLevel) bool {
	date, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}
	datetime, err := time.Parse(config.TIME_PARSE_FORMAT, date)
	if err != nil {
		return false
	}
	return datetime.After(time.Now())
}

var serviceCategory validator.Func = func(fl validator.FieldLevel) bool {
	return types.ServiceCategory(fl.Field().String()).Valid()
}

var stage validator.Func = func(fl validator.FieldLevel) bool {
	return types.Stage(fl.Field().String()).Valid()
}

var decision validator.Func = func(fl validator.FieldLevel) bool {
	return types.Decision(fl.Field().String()).Valid()
}

func registerValidators() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterValidation("bookabledate", bookableDate)
		v.RegisterValidation("servicecategory", serviceCategory)
		v.RegisterValidation("stage", stage)
		v.RegisterValidation("decision", decision)
	}
}

func renderError(ctx *gin.Context, err error) {
	status := apperr.HTTPStatus(apperr.KindOf(err))
	if status == http.StatusInternalServerError {
		log.Printf("[api] %s %s: %s\n", ctx.Request.Method, ctx.FullPath(), err.Error())
	}
	ctx.AbortWithStatusJSON(status, gin.H{"error": apperr.Body(err)})
}

func bindError(ctx *gin.Context, err error) {
	ctx.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": &apperr.Error{Kind: apperr.ValidationError, Message: err.Error()}})
}

func forbidden(msg string) error {
	return apperr.New(apperr.Forbidden, "%s", msg)
}

// actingAs renders Forbidden unless the caller is id acting in role.
func actingAs(ctx *gin.Context, role types.Role, id string) bool {
	actor := middlewares.Actor(ctx)
	if actor.Role != role || actor.ID != id {
		renderError(ctx, forbidden(fmt.Sprintf("request must be made by %s %s", role, id)))
		return false
	}
	return true
}

// canView renders the refusal unless the caller may read bookingID.
func canView(ctx *gin.Context, svc *engine.Service, bookingID string) bool {
	if err := svc.CanView(ctx, bookingID, middlewares.Actor(ctx)); err != nil {
		renderError(ctx, err)
		return false
	}
	return true
}

func setupRouter(cfg *config.Config, svc *engine.Service) *gin.Engine {
	router := gin.Default()
	router.Use(middlewares.SecureHeaders)
	if cfg.Env == types.Local {
		router.Use(cors.Default())
	} else {
		cc := cors.DefaultConfig()
		cc.AllowOrigins = cfg.CorsOrigins
		cc.AllowMethods = append(cc.AllowMethods, "GET", "POST", "PATCH", "PUT", "DELETE", "HEAD")
		cc.AllowHeaders = append(cc.AllowHeaders, "Origin", "Authorization")
		cc.AllowCredentials = true
		router.Use(cors.New(cc))
	}
	router.Use(middlewares.Maintenance(func() bool { return cfg.MaintenanceMode }))
	router.GET("/", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, "ok")
	})

	registerValidators()

	stripeWebhookRoute(router.Group(apiPrefix), svc, cfg.StripeWebhookSecret)

	authorized := router.Group(apiPrefix)
	authorized.Use(middlewares.AuthMiddleware([]byte(cfg.JWTSecret)))
	bookingHandlers(authorized, svc)
	bidHandlers(authorized, svc)
	extraPartsHandlers(authorized, svc)
	rescheduleHandlers(authorized, svc)
	paymentHandlers(authorized, svc)
	return router
}

func initLogger(cfg *config.Config) {
	for _, f := range []string{cfg.LogFile, cfg.AccessLogFile} {
		if err := os.MkdirAll(filepath.Dir(f), 0o755); err != nil {
			log.Printf("[logger] Error creating log dir: %s\n", err.Error())
		}
	}
	gin.ForceConsoleColor()

	access := &lumberjack.Logger{
		Filename:   cfg.AccessLogFile,
		MaxSize:    500,
		MaxBackups: 3,
		MaxAge:     30,
		Compress:   true,
	}
	gin.DefaultWriter = io.MultiWriter(access, os.Stdout)
	log.SetOutput(io.MultiWriter(&lumberjack.Logger{
		Filename:   cfg.LogFile,
		MaxSize:    500,
		MaxBackups: 3,
		MaxAge:     30,
		Compress:   true,
	}, os.Stdout))
}

func loadEnv() error {
	if os.Getenv("API_ENV") == string(types.Local) {
		cwd, _ := os.Getwd()
		if err := godotenv.Load(path.Join(cwd, ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	_, err := config.Load()
	return err
}

func serve(cmd *cobra.Command, _ []string) error {
	cfg := config.Get()
	initLogger(cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gdb := boot.InitDb()
	pub, closePublisher := boot.InitPublisher(ctx, cfg)
	defer closePublisher()
	svc := boot.InitEngine(gdb, cfg, pub)

	sched, err := boot.InitScheduler(svc, cfg)
	if err != nil {
		return err
	}
	defer boot.StopScheduler(sched)

	srv := &http.Server{Addr: cfg.Addr(), Handler: setupRouter(cfg, svc)}
	errCh := make(chan error, 1)
	go func() {
		log.Printf("[api] Listening on %s\n", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start server: %w", err)
		}
	case <-ctx.Done():
		log.Println("[api] Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
	}
	return nil
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "homejobs",
		Short:         "Home services booking API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadEnv()
		},
	}

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the bid expiry sweep",
		RunE:  serve,
	})

	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			return boot.Migrate(db.GetDb())
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "sweep-bids",
		Short: "Expire every pending bid whose window has closed",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Get()
			svc := engine.New(db.GetDb(), engine.WithPolicy(boot.Policy(cfg)))
			n, err := svc.SweepExpiredBids(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "expired %d bid(s)\n", n)
			return nil
		},
	})

	var sub, role string
	var ttl time.Duration
	token := &cobra.Command{
		Use:   "token",
		Short: "Sign a bearer token for local testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Get()
			if cfg.Env == types.Production {
				return errors.New("tokens are issued by the identity provider in production")
			}
			t, err := middlewares.SignToken([]byte(cfg.JWTSecret), types.Actor{ID: sub, Role: types.Role(role)}, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), t)
			return nil
		},
	}
	token.Flags().StringVar(&sub, "sub", "", "actor id")
	token.Flags().StringVar(&role, "role", string(types.ROLE_CUSTOMER), "customer, contractor or arbitrator")
	token.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	_ = token.MarkFlagRequired("sub")
	root.AddCommand(token)

	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Fatalf("Error: %s", err)
	}
}
