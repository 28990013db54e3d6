package cmd

import (
	"context"
	"embed"
	"os"
	"strings"
	"time"

	coreconfig "github.com/AzielCF/wa-amo-bridge/core/config"
	coreDB "github.com/AzielCF/wa-amo-bridge/core/database"
	"github.com/AzielCF/wa-amo-bridge/core/settings/application"
	settingsInfra "github.com/AzielCF/wa-amo-bridge/core/settings/infrastructure"
	domainChat "github.com/AzielCF/wa-amo-bridge/domains/chat"
	domainCRM "github.com/AzielCF/wa-amo-bridge/domains/crm"
	domainHealth "github.com/AzielCF/wa-amo-bridge/domains/health"
	domainSecret "github.com/AzielCF/wa-amo-bridge/domains/secret"
	domainSend "github.com/AzielCF/wa-amo-bridge/domains/send"
	domainWebhook "github.com/AzielCF/wa-amo-bridge/domains/webhook"
	"github.com/AzielCF/wa-amo-bridge/infrastructure/chatstorage"
	"github.com/AzielCF/wa-amo-bridge/infrastructure/secretstore"
	"github.com/AzielCF/wa-amo-bridge/infrastructure/valkey"
	"github.com/AzielCF/wa-amo-bridge/integrations/amocrm"
	"github.com/AzielCF/wa-amo-bridge/integrations/gupshup"
	"github.com/AzielCF/wa-amo-bridge/pkg/crypto"
	"github.com/AzielCF/wa-amo-bridge/pkg/msgworker"
	"github.com/AzielCF/wa-amo-bridge/pkg/utils"
	"github.com/AzielCF/wa-amo-bridge/ui/websocket"
	"github.com/AzielCF/wa-amo-bridge/usecase"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gorm.io/gorm"
)

var (
	EmbedViews embed.FS

	startedAt = time.Now()

	db          *gorm.DB
	vkClient    *valkey.Client
	settingsSvc *application.SettingsService
	chatRepo    domainChat.IChatStorageRepository
	hub         *websocket.Hub
	amoClient   *amocrm.Client
	amoTokens   *amocrm.TokenStore

	// Usecase
	chatUsecase    domainChat.IChatUsecase
	sendUsecase    domainSend.ISendUsecase
	webhookUsecase domainWebhook.IWebhookUsecase
	amoUsecase     domainCRM.IAmoUsecase
	healthUsecase  domainHealth.IHealthUsecase
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Short: "WhatsApp (Gupshup) to AmoCRM bridge",
	Long: `Receives Gupshup WhatsApp webhooks, stores the conversation, and mirrors
every message into AmoCRM as a contact, lead and note.`,
}

func init() {
	// Load environment variables first
	utils.LoadConfig(".")

	time.Local = time.UTC

	if _, err := coreconfig.LoadConfig(); err != nil {
		logrus.Fatalf("[CONFIG] %v", err)
	}

	rootCmd.CompletionOptions.DisableDefaultCmd = true

	initFlags()

	cobra.OnInitialize(initEnvConfig, initApp)
}

// initEnvConfig applies viper-bound environment values for every flag the
// user did not set explicitly.
func initEnvConfig() {
	flags := rootCmd.PersistentFlags()
	cfg := coreconfig.Global

	if !flags.Changed("port") {
		if v := viper.GetString("app_port"); v != "" {
			cfg.App.Port = v
		}
	}
	if !flags.Changed("debug") && viper.IsSet("app_debug") {
		cfg.App.Debug = viper.GetBool("app_debug")
	}
	if !flags.Changed("base-path") {
		if v := viper.GetString("app_base_path"); v != "" {
			cfg.App.BasePath = v
		}
	}
	if !flags.Changed("basic-auth") {
		if v := viper.GetString("app_basic_auth"); v != "" {
			cfg.App.BasicAuth = strings.Split(v, ",")
		}
	}
	if !flags.Changed("db-driver") {
		if v := viper.GetString("db_driver"); v != "" {
			cfg.Database.Driver = v
		}
	}
	if !flags.Changed("db-name") {
		if v := viper.GetString("db_name"); v != "" {
			cfg.Database.Name = v
		}
	}
}

func initFlags() {
	cfg := coreconfig.Global

	rootCmd.PersistentFlags().StringVarP(
		&cfg.App.Port,
		"port", "p",
		cfg.App.Port,
		"change port number with --port <number> | example: --port=8080",
	)
	rootCmd.PersistentFlags().BoolVarP(
		&cfg.App.Debug,
		"debug", "d",
		cfg.App.Debug,
		"hide or displaying log with --debug <true/false> | example: --debug=true",
	)
	rootCmd.PersistentFlags().StringSliceVarP(
		&cfg.App.BasicAuth,
		"basic-auth", "b",
		cfg.App.BasicAuth,
		"basic auth credential | -b=yourUsername:yourPassword",
	)
	rootCmd.PersistentFlags().StringVarP(
		&cfg.App.BasePath,
		"base-path", "",
		cfg.App.BasePath,
		`base path for subpath deployment --base-path <string> | example: --base-path="/bridge"`,
	)
	rootCmd.PersistentFlags().StringVarP(
		&cfg.Database.Driver,
		"db-driver", "",
		cfg.Database.Driver,
		`database driver --db-driver <sqlite|postgres> | example: --db-driver=postgres`,
	)
	rootCmd.PersistentFlags().StringVarP(
		&cfg.Database.Name,
		"db-name", "",
		cfg.Database.Name,
		`sqlite file path or postgres database name --db-name <string> | example: --db-name="storages/bridge.db"`,
	)
	rootCmd.PersistentFlags().IntVarP(
		&cfg.WorkerPool.Size,
		"sync-workers", "",
		cfg.WorkerPool.Size,
		`number of concurrent CRM sync workers --sync-workers <number> | example: --sync-workers=16`,
	)
	rootCmd.PersistentFlags().IntVarP(
		&cfg.WorkerPool.QueueSize,
		"sync-queue-size", "",
		cfg.WorkerPool.QueueSize,
		`queue size per CRM sync worker --sync-queue-size <number> | example: --sync-queue-size=1000`,
	)
}

func initApp() {
	cfg := coreconfig.Global
	if cfg.App.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	}

	if err := utils.CreateFolder(cfg.Paths.Statics, cfg.Paths.Media, cfg.Paths.Storages); err != nil {
		logrus.Errorln(err)
	}

	ctx := context.Background()

	var err error
	db, err = coreDB.NewDatabase(cfg)
	if err != nil {
		logrus.Fatalf("[DATABASE] %v", err)
	}
	if err := runMigrations(ctx, db); err != nil {
		logrus.Fatalf("[DATABASE] %v", err)
	}

	if cfg.Database.ValkeyEnabled {
		vkClient, err = valkey.NewClient(valkey.Config{
			Address:   cfg.Database.ValkeyAddress,
			Password:  cfg.Database.ValkeyPassword,
			DB:        cfg.Database.ValkeyDB,
			KeyPrefix: cfg.Database.ValkeyKeyPrefix,
		})
		if err != nil {
			logrus.WithError(err).Warn("[VALKEY] unavailable, continuing without cross-server relay")
			vkClient = nil
		}
	}

	settingsRepo := settingsInfra.NewGlobalSettingsGormRepository(db)
	settingsSvc = application.NewSettingsServiceWithRepo(settingsRepo)
	chatRepo = chatstorage.NewGormRepository(db)

	hub = websocket.NewHub()
	if vkClient != nil {
		hub.SetRelay(vkClient, vkClient.KeyPrefix(), utils.GetPersistentServerID(cfg.App.ServerID, cfg.Paths.Storages))
	}

	pool := msgworker.GetGlobalPool()
	fallback := domainCRM.LeadFilter{PipelineID: cfg.Amo.PipelineID, StatusID: cfg.Amo.StatusID}

	initAmo(ctx, cfg, settingsRepo)

	var crmSync *usecase.CRMSync
	var notes usecase.NoteWriter
	var gateway usecase.AmoGateway
	var crmClient domainCRM.ICRMClient
	if amoClient != nil {
		reconciler := amocrm.NewReconciler(amoClient, amocrm.WithLeadFilter(usecase.RoutingFilter(settingsSvc, fallback)))
		crmSync = usecase.NewCRMSync(reconciler, chatRepo, hub, pool)
		notes = amoClient
		gateway = amoClient
		crmClient = amoClient
	} else {
		logrus.Warn("[AMOCRM] AMO_SUBDOMAIN, AMO_CLIENT_ID or AMO_CLIENT_SECRET missing; CRM sync disabled")
	}

	if !cfg.Gupshup.Configured() {
		logrus.Warn("[GUPSHUP] GUPSHUP_API_KEY or GUPSHUP_SOURCE_NUMBER missing; sending disabled")
	}
	provider := gupshup.NewClient(gupshup.Config{
		APIKey:       cfg.Gupshup.APIKey,
		AppName:      cfg.Gupshup.AppName,
		SourceNumber: cfg.Gupshup.SourceNumber,
		BaseURL:      cfg.Gupshup.BaseURL,
		Timeout:      cfg.HTTP.Timeout,
	})

	chatUsecase = usecase.NewChatService(chatRepo, hub, crmClient)
	webhookUsecase = usecase.NewWebhookService(chatRepo, hub, crmSync, cfg.Gupshup.WebhookSecret)
	sendUsecase = usecase.NewSendService(provider, chatRepo, hub, crmSync, notes, usecase.MediaOptions{
		Dir:        cfg.Paths.Media,
		PublicBase: strings.TrimRight(cfg.App.BaseUrl, "/") + cfg.App.BasePath + "/statics/media",
	})

	var tokens usecase.TokenView
	if amoTokens != nil {
		tokens = amoTokens
	}
	amoUsecase = usecase.NewAmoService(gateway, tokens, settingsSvc, fallback, secretstore.NewStateStore(vkClient), cfg.Amo.Configured())

	healthOpts := usecase.HealthOptions{
		Env:               cfg.App.Environment,
		Version:           cfg.App.Version,
		StartedAt:         startedAt,
		Database:          func(ctx context.Context) error { return coreDB.Ping(ctx, db) },
		GupshupConfigured: cfg.Gupshup.Configured(),
		AmoConfigured:     cfg.Amo.Configured(),
		Tokens:            tokens,
		Chats:             chatRepo,
		Workers:           pool.GetStats,
	}
	if vkClient != nil {
		healthOpts.Valkey = vkClient.Ping
	}
	healthUsecase = usecase.NewHealthService(healthOpts)
}

// initAmo builds the token store and CRM client. Both stay nil when the
// OAuth application is not configured.
func initAmo(ctx context.Context, cfg *coreconfig.Config, settingsRepo *settingsInfra.GlobalSettingsGormRepository) {
	if !cfg.Amo.Configured() {
		return
	}

	cipher, err := crypto.NewCipher(cfg.Security.SecretKey)
	if err != nil {
		logrus.Fatalf("[SECRETS] %v", err)
	}
	opts := secretstore.Options{
		Backend:  cfg.Amo.TokenStore,
		EnvFile:  cfg.Amo.EnvFile,
		Settings: settingsRepo,
		Cipher:   cipher,
	}
	if vkClient != nil {
		opts.Valkey = vkClient
	}
	secrets, err := secretstore.New(opts)
	if err != nil {
		logrus.WithError(err).Warnf("[SECRETS] falling back to %s token store", domainSecret.BackendMemory)
		secrets = secretstore.NewMemory(nil)
	}

	amoTokens = amocrm.NewTokenStore(secrets, domainCRM.TokenPair{
		AccessToken:  cfg.Amo.AccessToken,
		RefreshToken: cfg.Amo.RefreshToken,
	})
	if err := amoTokens.Load(ctx); err != nil {
		logrus.WithError(err).Warn("[AMOCRM] failed to load stored tokens, using environment values")
	}

	amoClient = amocrm.NewClient(amocrm.Config{
		BaseURL:      cfg.Amo.BaseURL,
		TokenURL:     cfg.Amo.TokenURL,
		AuthURL:      cfg.Amo.AuthURL,
		ClientID:     cfg.Amo.ClientID,
		ClientSecret: cfg.Amo.ClientSecret,
		RedirectURI:  cfg.Amo.RedirectURI,
		Timeout:      cfg.HTTP.Timeout,
	}, amoTokens)
	amoClient.OnRefresh = usecase.RecordTokenRefresh
	logrus.Infof("[AMOCRM] client ready for %s (token %s)", cfg.Amo.Subdomain, amoTokens.State())
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute(embedViews embed.FS) {
	EmbedViews = embedViews
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// StopApp drains the sync workers and closes every connection.
func StopApp() {
	logrus.Info("[APP] Stopping application...")

	msgworker.StopGlobalPool()

	if vkClient != nil {
		vkClient.Close()
	}
	if err := coreDB.Close(); err != nil {
		logrus.WithError(err).Error("[APP] failed to close database")
	}

	logrus.Info("[APP] Application stopped cleanly.")
}
