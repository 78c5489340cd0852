package main

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"bizassist/internal/config"
	"bizassist/internal/core"
	bizembedding "bizassist/internal/embedding"
	"bizassist/internal/index"
	"bizassist/internal/llm"
	"bizassist/internal/logger"
	"bizassist/internal/nodes"
	"bizassist/internal/services"
	"bizassist/internal/storage"
	"bizassist/internal/tools"
	"bizassist/pkg"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
)

// assistant holds the wired components of one process
type assistant struct {
	processor *core.Processor
	profiles  storage.ProfileStore
	ingestor  *index.Ingestor
	documents *services.DocumentService
	leads     *services.LeadService
	closers   []func() error
}

func (a *assistant) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.Warn().Err(err).Msg("Error during shutdown")
		}
	}
}

// newAssistant wires stores, index, model, tools and nodes from the configuration
func newAssistant(ctx context.Context, cfg *config.Config, yamlCfg *config.YAMLConfig) (*assistant, error) {
	a := &assistant{}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	cm, err := llm.NewChatModel(ctx, cfg.LLM)
	if err != nil {
		return nil, err
	}
	emb, err := newEmbedder(cfg.Embedding)
	if err != nil {
		return nil, err
	}

	var (
		db           *sql.DB
		profiles     storage.ProfileStore = storage.NewJSONProfileStore(cfg.Storage.ProfilesDir)
		appointments storage.AppointmentStore
		idx          index.Index
	)
	if cfg.Postgres.DSN != "" {
		db, err = storage.OpenPostgres(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxOpenConns, cfg.Postgres.MaxIdleConns)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		if err := storage.MigratePostgres(ctx, db); err != nil {
			return nil, err
		}
		profiles = storage.NewPostgresProfileStore(db)
		appointments = storage.NewPostgresAppointmentStore(db)
	} else {
		appointments = storage.NewMemoryAppointmentStore()
	}
	if db != nil && cfg.Postgres.VectorIndex {
		pg := index.NewPgVectorIndex(db)
		if err := pg.Migrate(ctx); err != nil {
			return nil, err
		}
		idx = pg
	} else {
		idx = index.NewMemoryIndex()
	}

	var (
		conversations storage.ConversationStore
		ledger        tools.Ledger
	)
	if cfg.Redis.URL != "" {
		client, err := storage.NewRedisClient(ctx, cfg.Redis.URL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, client.Close)
		conversations = storage.NewRedisConversationStore(client, cfg.Redis.TTL)
		ledger = tools.NewRedisLedger(client, cfg.Redis.TTL)
	} else {
		conversations = storage.NewMemoryConversationStore(cfg.Redis.TTL)
		ledger = tools.NewMemoryLedger()
	}

	executor, err := newExecutor(ctx, cfg.Tools, ledger)
	if err != nil {
		return nil, err
	}

	keywords := nodes.NewKeywordClassifier(yamlCfg.Classifier)
	classifier, err := newClassifier(ctx, cm, yamlCfg.Classifier, keywords)
	if err != nil {
		return nil, err
	}
	rag, err := nodes.NewRAGNode(ctx, emb, idx, cm, cfg.Retrieval)
	if err != nil {
		return nil, err
	}

	a.profiles = profiles
	a.ingestor = index.NewIngestor(idx, emb, index.Chunker{Size: cfg.Retrieval.ChunkSize, Overlap: cfg.Retrieval.ChunkOverlap}, 0, 0)
	a.documents = services.NewDocumentService(a.ingestor, executor, cfg.Tools.NotifyUploads)
	a.leads = services.NewLeadService(storage.NewJSONLeadStore(cfg.Storage.LeadsDir), executor, cfg.Tools.NotifyNewLeads)
	a.processor, err = core.NewProcessor(core.Dependencies{
		Profiles:      profiles,
		Conversations: conversations,
		Classifier:    classifier,
		Providers: map[pkg.Intent]core.Node{
			pkg.IntentFAQ:         nodes.NewFAQNode(),
			pkg.IntentDocumentQA:  rag,
			pkg.IntentAppointment: nodes.NewAppointmentNode(appointments, cfg.Appointment, keywords),
			pkg.IntentToolRequest: nodes.NewToolRequestNode(),
		},
		Tools: executor,
		Leads: a.leads,
	}, cfg.Orchestrator)
	if err != nil {
		return nil, err
	}

	logger.Info().
		Str("llm", cfg.LLM.Provider).
		Str("embedding", cfg.Embedding.Provider).
		Bool("postgres", db != nil).
		Bool("redis", cfg.Redis.URL != "").
		Str("classifier", classifier.GetName()).
		Msg("Assistant ready")
	ok = true
	return a, nil
}

func newEmbedder(cfg config.EmbeddingConfig) (embedding.Embedder, error) {
	var emb embedding.Embedder
	switch strings.ToLower(cfg.Provider) {
	case "hash":
		emb = bizembedding.NewHashEmbedder(cfg.Dimensions)
	case "ollama", "":
		o, err := bizembedding.NewOllamaEmbedder(cfg.Model, cfg.Dimensions)
		if err != nil {
			return nil, err
		}
		emb = o
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}
	if cfg.CacheSize <= 0 {
		return emb, nil
	}
	return bizembedding.NewCachedEmbedder(emb, cfg.CacheSize)
}

func newClassifier(ctx context.Context, cm model.BaseChatModel, cfg config.ClassifierConfig, keywords *nodes.KeywordClassifier) (core.Node, error) {
	if !cfg.UseLLM || cm == nil {
		return keywords, nil
	}
	return nodes.NewNLUClassifier(ctx, cm, cfg, keywords)
}

// newExecutor builds the five tools on the configured delivery channels
func newExecutor(ctx context.Context, cfg config.ToolsConfig, ledger tools.Ledger) (*tools.Executor, error) {
	var (
		email    tools.EmailSender   = tools.DisabledSender{Channel: "email"}
		messages tools.MessageSender = tools.DisabledSender{Channel: "messaging"}
	)

	emailProvider := strings.ToLower(cfg.EmailProvider)
	messageProvider := strings.ToLower(cfg.MessageProvider)
	if emailProvider == "ses" || messageProvider == "sns" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			return nil, fmt.Errorf("failed to load aws config: %w", err)
		}
		if emailProvider == "ses" {
			email = tools.NewSESEmailSender(ses.NewFromConfig(awsCfg), cfg.EmailFrom)
		}
		if messageProvider == "sns" {
			messages = tools.NewSNSMessageSender(sns.NewFromConfig(awsCfg))
		}
	}
	if emailProvider == "smtp" {
		email = tools.NewSMTPEmailSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.EmailFrom)
	}
	if messageProvider == "ultramsg" && cfg.UltraMsgInstance != "" && cfg.UltraMsgToken != "" {
		messages = tools.NewUltraMsgSender(cfg.UltraMsgBaseURL, cfg.UltraMsgInstance, cfg.UltraMsgToken, nil)
	}

	var calendar tools.CalendarBackend = tools.NewEmailCalendar(tools.DisabledSender{Channel: "calendar"}, "")
	if cfg.CalendarOwner != "" {
		calendar = tools.NewEmailCalendar(email, cfg.CalendarOwner)
	}

	emailTool, err := tools.EmailTool(email, emailProvider)
	if err != nil {
		return nil, err
	}
	messageTool, err := tools.MessageTool(messages, messageProvider)
	if err != nil {
		return nil, err
	}
	calendarTools, err := tools.CalendarTools(calendar, "email")
	if err != nil {
		return nil, err
	}
	all := append([]tool.InvokableTool{emailTool, messageTool}, calendarTools...)
	return tools.NewExecutor(ctx, ledger, cfg.Timeout, all...)
}
