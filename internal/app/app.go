// Package app assembles the bot: catalog store, dialog engine, wizard
// flows, greeting handlers and the optional admin HTTP server.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/linearity/postbot/core/cmd"
	coreconfig "github.com/linearity/postbot/core/config"
	"github.com/linearity/postbot/core/logger"
	coretelegram "github.com/linearity/postbot/core/telegram"
	"github.com/linearity/postbot/core/telegram/commands"
	"github.com/linearity/postbot/core/telegram/format"
	"github.com/linearity/postbot/core/telegram/helpers"
	"github.com/linearity/postbot/core/telegram/middleware"
	"github.com/linearity/postbot/core/telegram/router"
	"github.com/linearity/postbot/core/telegram/ui"
	"github.com/linearity/postbot/internal/adminapi"
	"github.com/linearity/postbot/internal/catalog"
	"github.com/linearity/postbot/internal/delivery"
	"github.com/linearity/postbot/internal/dialog"
	"github.com/linearity/postbot/internal/flows"
	"github.com/linearity/postbot/internal/greet"

	tele "gopkg.in/telebot.v4"
)

const rejectNotice = "Non autorizzato. Solo amministratori possono usare questo comando."

// Config carries the loaded core configuration into the runner.
type Config struct {
	Core *coreconfig.Config
}

// CoreConfig implements cmd.ConfigCarrier.
func (c *Config) CoreConfig() *coreconfig.Config { return c.Core }

// LoadConfig reads the configuration and initializes logging.
func LoadConfig(path string) (cmd.ConfigCarrier, error) {
	cfg, err := coreconfig.Load(path)
	if err != nil {
		return nil, err
	}
	if err := logger.InitLogger(cfg); err != nil {
		return nil, fmt.Errorf("app: logger init: %w", err)
	}
	return &Config{Core: cfg}, nil
}

// App owns the long-lived components of the bot process.
type App struct {
	cfg      *coreconfig.Config
	store    *catalog.Store
	engine   *dialog.Engine
	registry *coretelegram.Registry
	editor   *flows.PresetEditor
	composer *flows.Composer

	// set in onStart once the bot client exists
	greeter *greet.Greeter
	admin   *adminapi.Server
}

var _ ui.FallbackProvider = (*App)(nil)

// New builds the application from a loaded configuration.
func New(carrier cmd.ConfigCarrier) (cmd.TelegramApp, error) {
	cfg := carrier.CoreConfig()

	store, err := catalog.NewStore(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("app: catalog store: %w", err)
	}

	engine := dialog.NewEngine()
	editor := &flows.PresetEditor{Engine: engine, Store: store}
	composer := &flows.Composer{Engine: engine, Store: store, Editor: editor}

	a := &App{
		cfg:      cfg,
		store:    store,
		engine:   engine,
		editor:   editor,
		composer: composer,
	}
	a.registry = a.buildRegistry()
	return a, nil
}

func (a *App) buildRegistry() *coretelegram.Registry {
	reg := coretelegram.NewRegistry()

	reg.RegisterCommand("/start", commands.Command{
		Description: "Avvia il bot",
		Handler:     a.handleStart,
	})
	reg.RegisterCommand("/help", commands.Command{
		Description: "Mostra i comandi disponibili",
		Handler:     a.handleHelp,
		Aliases:     []string{"aiuto"},
	})
	reg.RegisterCommand("/id", commands.Command{
		Description: "Mostra il tuo ID",
		Handler:     a.handleID,
	})
	reg.RegisterCommand("/createpost", commands.Command{
		Description: "Crea un post per il canale",
		AdminOnly:   true,
		Handler:     a.composer.Handle,
	})
	reg.RegisterCommand("/preset", commands.Command{
		Description: "Gestisci i preset di pulsanti",
		AdminOnly:   true,
		Handler:     a.editor.Handle,
	})

	reg.SetTextFallback(a.UnknownText())
	reg.SetCallbackNotFound(a.UnknownCallback())
	return reg
}

// TelegramRunOptions implements cmd.TelegramApp.
func (a *App) TelegramRunOptions() (coretelegram.RunOptions, error) {
	middlewares := coretelegram.DefaultMiddlewares(a.cfg, nil)

	routes := router.CommandRoutes(a.registry, router.CommandRouteOptions{
		Allowed: a.cfg.Telegram.IsOperator,
		OnReject: func(c tele.Context) error {
			return helpers.SendText(c, rejectNotice)
		},
	})
	// Unknown text falls through to the registry fallback, so only the
	// photo and document fallbacks are wired here.
	routes = append(routes, router.TextRoutes(a.engine, a.registry, router.TextOptions{
		UnknownPhoto:    a.UnknownPhoto(),
		UnknownDocument: a.UnknownDocument(),
	})...)
	routes = append(routes, router.CallbackRoute(a.engine, a.registry, router.CallbackOptions{
		NotFound: a.UnknownCallback(),
	}))
	routes = append(routes,
		coretelegram.Route{
			Endpoint: tele.OnChatJoinRequest,
			Handler:  middleware.RecoverMiddleware(middleware.LoggerMiddleware(a.handleJoinRequest)),
		},
		coretelegram.Route{
			Endpoint: tele.OnUserJoined,
			Handler:  middleware.RecoverMiddleware(middleware.LoggerMiddleware(a.handleUserJoined)),
		},
	)

	return coretelegram.RunOptions{
		Config:      a.cfg,
		Registry:    a.registry,
		Middlewares: middlewares,
		Routes:      routes,
		OnStart:     a.onStart,
		OnStop:      a.onStop,
	}, nil
}

func (a *App) onStart(_ context.Context, rt coretelegram.Runtime) error {
	sender := &delivery.BotSender{Bot: rt.Bot}
	a.composer.Sender = sender
	a.greeter = greet.New(rt.Bot, a.cfg.Telegram.TargetChatID, a.store.Dir())

	if a.cfg.AdminHTTP.Enabled {
		var defaultTarget string
		if a.cfg.Telegram.TargetChatID != 0 {
			defaultTarget = strconv.FormatInt(a.cfg.Telegram.TargetChatID, 10)
		}
		a.admin = adminapi.New(a.cfg.AdminHTTP, a.store, sender, defaultTarget)
		go func() {
			if err := a.admin.Start(); err != nil {
				logger.Error(logger.Background(), "adminapi", "serve.failed",
					slog.String("err", err.Error()),
				)
			}
		}()
	}
	return nil
}

func (a *App) onStop(ctx context.Context, _ coretelegram.Runtime) error {
	if a.admin != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := a.admin.Shutdown(shutdownCtx); err != nil {
			logger.Warn(logger.Background(), "adminapi", "shutdown.failed",
				slog.String("err", err.Error()),
			)
		}
	}
	a.engine.Close()
	return nil
}

func (a *App) handleStart(c tele.Context) error {
	if a.greeter == nil {
		return nil
	}
	return a.greeter.Start(c)
}

func (a *App) handleJoinRequest(c tele.Context) error {
	if a.greeter == nil {
		return nil
	}
	return a.greeter.JoinRequest(c)
}

func (a *App) handleUserJoined(c tele.Context) error {
	if a.greeter == nil {
		return nil
	}
	return a.greeter.UserJoined(c)
}

func (a *App) handleHelp(c tele.Context) error {
	list := a.registry.ListCommands(true)
	if sender := c.Sender(); sender != nil && a.cfg.Telegram.IsOperator(sender.ID) {
		list = a.registry.ListOperatorCommands()
	}

	var b strings.Builder
	b.WriteString("*Comandi disponibili:*\n")
	for _, cmdInfo := range list {
		desc, err := format.EscapeMarkdown(cmdInfo.Description, format.MarkdownV1)
		if err != nil {
			desc = cmdInfo.Description
		}
		fmt.Fprintf(&b, "%s - %s\n", cmdInfo.Text, desc)
	}
	return helpers.SendMD(c, b.String())
}

func (a *App) handleID(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}
	text := fmt.Sprintf("User ID: %d", sender.ID)
	if chat := c.Chat(); chat != nil && chat.ID != sender.ID {
		text += fmt.Sprintf("\nChat ID: %d", chat.ID)
	}
	return helpers.SendText(c, text)
}

// UnknownText implements ui.FallbackProvider.
func (a *App) UnknownText() tele.HandlerFunc {
	return func(c tele.Context) error {
		if c.Chat() != nil && c.Chat().Type != tele.ChatPrivate {
			return nil
		}
		return helpers.SendText(c, "Non ho capito. Usa /help per vedere i comandi disponibili.")
	}
}

// UnknownPhoto implements ui.FallbackProvider.
func (a *App) UnknownPhoto() tele.HandlerFunc {
	return func(c tele.Context) error {
		if c.Chat() != nil && c.Chat().Type != tele.ChatPrivate {
			return nil
		}
		return helpers.SendText(c, "Nessuna procedura attiva. Usa /createpost per allegare immagini a un post.")
	}
}

// UnknownDocument implements ui.FallbackProvider.
func (a *App) UnknownDocument() tele.HandlerFunc {
	return func(c tele.Context) error { return nil }
}

// UnknownCallback implements ui.FallbackProvider.
func (a *App) UnknownCallback() tele.HandlerFunc {
	return func(c tele.Context) error {
		return c.Respond(&tele.CallbackResponse{Text: "Azione non supportata"})
	}
}
