package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/hitoshi/connectin/internal/metrics"
	"github.com/hitoshi/connectin/internal/middleware"
	"github.com/hitoshi/connectin/internal/model"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Authenticator     middleware.TokenAuthenticator
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	CSRFConfig        middleware.CSRFConfig
	Logger            *slog.Logger
	Metrics           metrics.Recorder
	// MetricsHandler がnilの場合 /metrics はマウントしない
	MetricsHandler http.Handler
	DB             Pinger
	// HSTS はHTTPSで公開する場合にStrict-Transport-Securityを付与する
	HSTS bool

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// ユーザー
	UserService   UserServiceInterface
	MaxUploadSize int64

	ProjectService      ProjectServiceInterface
	TeamService         TeamServiceInterface
	PostService         PostServiceInterface
	TagService          TermServiceInterface
	SkillService        TermServiceInterface
	TodoService         TodoServiceInterface
	NotificationService NotificationServiceInterface

	// チャット
	ChatService ChatServiceInterface
	ChatHub     ChatHub
	Upgrader    *websocket.Upgrader
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → Logging → Metrics → CORS
//	（認証が必要なルートのみ）→ Auth → CSRF → RateLimit(General)
//
// /health、/metrics、登録・ログイン、OAuthフローは認証不要。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	rec := deps.Metrics
	if rec == nil {
		rec = metrics.Nop{}
	}

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware(middleware.SecurityHeadersConfig{
		HSTS: deps.HSTS,
	}))
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(metrics.Middleware(rec))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewRouteNotFoundError())
	})

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig, rec)
	userHandler := NewUserHandler(deps.UserService, deps.MaxUploadSize)
	projectHandler := NewProjectHandler(deps.ProjectService)
	teamHandler := NewTeamHandler(deps.TeamService)
	postHandler := NewPostHandler(deps.PostService)
	tagHandler := NewTermHandler(deps.TagService)
	skillHandler := NewTermHandler(deps.SkillService)
	todoHandler := NewTodoHandler(deps.TodoService)
	notificationHandler := NewNotificationHandler(deps.NotificationService)
	chatHandler := NewChatHandler(deps.ChatService, deps.ChatHub, deps.Upgrader)

	// protected は認証が必要なルートのミドルウェアスタックを適用する。
	// ミドルウェアスタック: Auth → CSRF → RateLimit(General)
	protected := func(r chi.Router) {
		r.Use(middleware.NewAuthMiddleware(deps.Authenticator))
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))
		r.Use(deps.RateLimiter.GeneralMiddleware())
	}

	// --- 認証不要のルート ---

	r.Get("/health", NewHealthHandler(deps.DB))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}
	r.Method(http.MethodGet, "/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", authHandler.Register)
		// POST /auth/login - ログイン専用のIP単位レート制限を追加
		r.With(deps.RateLimiter.LoginMiddleware()).Post("/login", authHandler.Login)

		// OAuthフロー（設定済みのプロバイダーのみ）
		for _, provider := range []string{model.ProviderGoogle, model.ProviderGitHub} {
			if !deps.AuthService.HasProvider(provider) {
				continue
			}
			r.Get("/"+provider+"/login", authHandler.OAuthLogin(provider))
			r.Get("/"+provider+"/callback", authHandler.OAuthCallback(provider))
		}

		r.Group(func(r chi.Router) {
			protected(r)
			r.Get("/me", authHandler.Me)
			r.Get("/me/identities", authHandler.Identities)
			r.Post("/logout", authHandler.Logout)
		})
	})

	// プロジェクトの閲覧は認証不要。それ以外の操作は認証グループに置く。
	r.Route("/projects", func(r chi.Router) {
		r.Get("/", projectHandler.List)
		r.Get("/{id}", projectHandler.Get)
		r.Get("/{id}/comments", projectHandler.ListComments)

		r.Group(func(r chi.Router) {
			protected(r)
			r.Post("/", projectHandler.Create)
			r.Get("/my", projectHandler.ListMine)
			r.Put("/{id}", projectHandler.Update)
			r.Delete("/{id}", projectHandler.Delete)

			// 参加ワークフロー
			r.Post("/{id}/apply", projectHandler.Apply)
			r.Post("/{id}/leave", projectHandler.Leave)
			r.Get("/{id}/members", projectHandler.ListMembers)
			r.Delete("/{id}/members/{userID}", projectHandler.RemoveMember)
			r.Get("/{id}/applications", projectHandler.ListApplications)
			r.Post("/{id}/applications/{userID}/decision", projectHandler.Decide)

			// 投票・コメント
			r.Post("/{id}/vote", projectHandler.Vote)
			r.Get("/{id}/vote_status", projectHandler.VoteStatus)
			r.Post("/{id}/comments", projectHandler.AddComment)
			r.Delete("/{id}/comments/{commentID}", projectHandler.DeleteComment)
		})
	})

	// --- 認証が必要なルート ---
	r.Group(func(r chi.Router) {
		protected(r)

		// ユーザー
		r.Route("/users", func(r chi.Router) {
			r.Get("/", userHandler.Search)
			r.Put("/me", userHandler.UpdateProfile)
			r.Delete("/me", userHandler.Withdraw)
			r.Put("/me/skills", userHandler.ReplaceSkills)
			r.Put("/me/photos/{kind}", userHandler.UploadPhoto)
			r.Post("/me/photos/{kind}/import", userHandler.ImportPhoto)
			r.Get("/{id}", userHandler.GetProfile)
		})

		// チーム
		r.Route("/teams", func(r chi.Router) {
			r.Get("/", teamHandler.List)
			r.Post("/", teamHandler.Create)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", teamHandler.Get)
				r.Put("/", teamHandler.Update)
				r.Delete("/", teamHandler.Delete)
				r.Post("/members", teamHandler.AddMember)
				r.Delete("/members/{userID}", teamHandler.RemoveMember)
			})
		})

		// 投稿
		r.Route("/posts", func(r chi.Router) {
			r.Get("/", postHandler.List)
			r.Post("/", postHandler.Create)
			r.Get("/{id}", postHandler.Get)
			r.Delete("/{id}", postHandler.Delete)
			r.Post("/{id}/like", postHandler.ToggleLike)
		})

		// タグ・スキル
		r.Get("/tags", tagHandler.List)
		r.Post("/tags", tagHandler.Create)
		r.Get("/skills", skillHandler.List)
		r.Post("/skills", skillHandler.Create)

		// TODO
		r.Route("/todos", func(r chi.Router) {
			r.Get("/", todoHandler.List)
			r.Post("/", todoHandler.Create)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", todoHandler.Get)
				r.Put("/", todoHandler.Update)
				r.Delete("/", todoHandler.Delete)
				r.Post("/watchers", todoHandler.AddWatcher)
				r.Delete("/watchers/{userID}", todoHandler.RemoveWatcher)
			})
		})

		// チャット
		r.Route("/chats", func(r chi.Router) {
			r.Get("/", chatHandler.ListConversations)
			r.Post("/", chatHandler.StartConversation)
			r.Get("/ws/{id}", chatHandler.WebSocket)
			r.Get("/{id}/messages", chatHandler.ListMessages)
			r.Post("/{id}/messages", chatHandler.SendMessage)
		})

		// 通知
		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", notificationHandler.List)
			r.Post("/read-all", notificationHandler.MarkAllRead)
			r.Post("/{id}/read", notificationHandler.MarkRead)
		})
	})

	return r
}
