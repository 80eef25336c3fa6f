package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/bitesync/internal/metrics"
	"github.com/hitoshi/bitesync/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	SessionResolver   middleware.SessionResolver
	CORSAllowedOrigin string
	CSRFConfig        middleware.CSRFConfig
	RateLimiter       *middleware.RateLimiter
	Metrics           metrics.MetricsCollector
	MetricsHandler    http.Handler // nilの場合は/metricsを公開しない

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// プロフィール・スケジュール
	Dashboard   DashboardServiceInterface
	Schedules   ScheduleReader
	Roles       RoleLister
	Commitments CommitmentServiceInterface

	// プロジェクト・タスク
	Projects ProjectServiceInterface

	// チャット
	Chat ChatRelayer

	// 退会
	Accounts AccountWithdrawer
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Logging → Metrics → Recovery → SecurityHeaders → CORS
//	  → (認証グループ) Session → RateLimit(General) → CSRF
//
// 認証ルート（/auth/*）、/health、/metricsは認証グループの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewMetricsMiddleware(deps.Metrics))
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.AuthConfig.CookieSecure))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.AuthService, deps.Dashboard, deps.AuthConfig)
	meHandler := NewMeHandler(deps.Dashboard, deps.Schedules, deps.Roles)
	commitmentHandler := NewCommitmentHandler(deps.Commitments)
	projectHandler := NewProjectHandler(deps.Projects)
	chatHandler := NewChatHandler(deps.Chat)
	accountHandler := NewAccountHandler(deps.Accounts, deps.AuthConfig)

	csrf := middleware.NewCSRFMiddleware(deps.CSRFConfig)

	// --- 認証不要のルート ---

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	r.Get("/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig).ServeHTTP)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/signup", authHandler.SignUp)
		r.Post("/signin", authHandler.SignIn)
		r.With(csrf).Post("/signout", authHandler.SignOut)
		r.Get("/session", authHandler.Session)
	})

	// --- 認証が必要なルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionResolver))
		r.Use(deps.RateLimiter.GeneralMiddleware())
		r.Use(csrf)

		r.Get("/api/roles", meHandler.ListRoles)

		r.Route("/api/me", func(r chi.Router) {
			r.Get("/", meHandler.Dashboard)
			r.Delete("/", accountHandler.Withdraw)
			r.Patch("/profile", meHandler.UpdateProfile)

			r.Route("/schedule", func(r chi.Router) {
				r.Get("/", meHandler.GetSchedule)
				r.Put("/", meHandler.SaveSchedule)

				r.Route("/commitments", func(r chi.Router) {
					r.Get("/", commitmentHandler.List)
					r.Post("/", commitmentHandler.Create)
					r.Put("/{id}", commitmentHandler.Update)
					r.Delete("/{id}", commitmentHandler.Delete)
				})
			})
		})

		r.Route("/api/projects", func(r chi.Router) {
			r.Get("/", projectHandler.ListProjects)
			r.Post("/", projectHandler.CreateProject)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", projectHandler.GetProject)
				r.Put("/", projectHandler.UpdateProject)
				r.Delete("/", projectHandler.DeleteProject)

				r.Get("/tasks", projectHandler.ListTasks)
				r.Post("/tasks", projectHandler.CreateTask)
			})
		})

		r.Route("/api/tasks/{id}", func(r chi.Router) {
			r.Put("/", projectHandler.UpdateTask)
			r.Delete("/", projectHandler.DeleteTask)
		})

		// POST /api/chat - チャット中継（チャット専用レート制限を追加）
		r.With(deps.RateLimiter.ChatMiddleware()).Post("/api/chat", chatHandler.Chat)
	})

	return r
}
