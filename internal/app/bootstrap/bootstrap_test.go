package bootstrap

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/wolfman30/outreach-ai-platform/internal/config"
	"github.com/wolfman30/outreach-ai-platform/internal/leads"
	"github.com/wolfman30/outreach-ai-platform/internal/locks"
	"github.com/wolfman30/outreach-ai-platform/internal/mailer"
	"github.com/wolfman30/outreach-ai-platform/internal/outreach"
	"github.com/wolfman30/outreach-ai-platform/pkg/logging"
)

func baseConfig() *appconfig.Config {
	return &appconfig.Config{
		LeadStore:         "memory",
		MaxAttempts:       3,
		ReplyDetection:    "status",
		CycleConcurrency:  1,
		GenerationTimeout: time.Minute,
		CycleLockBackend:  "local",
		CycleLockTTL:      time.Minute,
		LeadLockTTL:       time.Minute,
		LLMProvider:       "openai",
		OpenAIAPIKey:      "sk-test",
		OpenAIModelID:     "gpt-4o-mini",
		EmailProvider:     "stub",
		SenderEmail:       "sam@agency.test",
		SenderName:        "Sam",
		IMAPAddr:          "imap.agency.test:993",
		ReplyLookback:     time.Hour,
		ReplyFetchLimit:   10,
		PortfolioLimit:    2,
		ScrapeTimeout:     time.Second,
		ScrapeRatePerHost: 1,
	}
}

func TestBuildWiresMemoryRuntime(t *testing.T) {
	cfg := baseConfig()
	rt, err := Build(context.Background(), cfg, aws.Config{Region: "us-east-1"}, logging.Discard(), Options{
		Registerer: prometheus.NewRegistry(),
	})
	require.NoError(t, err)
	defer rt.Close()

	assert.NotNil(t, rt.Dispatcher)
	assert.NotNil(t, rt.Monitor)
	assert.NotNil(t, rt.Mailer)
	assert.Nil(t, rt.Ledger)
	assert.Nil(t, rt.Redis)
	_, ok := rt.Store.(*leads.InMemoryRepository)
	assert.True(t, ok)
}

func TestBuildRejectsBadPolicy(t *testing.T) {
	cfg := baseConfig()
	cfg.MaxAttempts = 0
	_, err := Build(context.Background(), cfg, aws.Config{}, logging.Discard(), Options{Registerer: prometheus.NewRegistry()})
	assert.Error(t, err)

	cfg = baseConfig()
	cfg.ReplyDetection = "telepathy"
	_, err = Build(context.Background(), cfg, aws.Config{}, logging.Discard(), Options{Registerer: prometheus.NewRegistry()})
	assert.Error(t, err)
}

func TestBuildLLMClient(t *testing.T) {
	ctx := context.Background()
	cfg := baseConfig()

	cfg.LLMProvider = "bedrock"
	_, _, err := BuildLLMClient(ctx, cfg, aws.Config{}, logging.Discard())
	assert.ErrorContains(t, err, "BEDROCK_MODEL_ID")

	cfg.LLMProvider = "carrier-pigeon"
	_, _, err = BuildLLMClient(ctx, cfg, aws.Config{}, logging.Discard())
	assert.Error(t, err)

	cfg.LLMProvider = "bedrock"
	cfg.BedrockModelID = "anthropic.claude-3-haiku"
	cfg.LLMFallbackProvider = "openai"
	client, closeFn, err := BuildLLMClient(ctx, cfg, aws.Config{Region: "us-east-1"}, logging.Discard())
	require.NoError(t, err)
	defer closeFn()
	assert.NotNil(t, client)
}

func TestBuildLeadStore(t *testing.T) {
	ctx := context.Background()
	cfg := baseConfig()

	store, closeFn, err := BuildLeadStore(ctx, cfg, logging.Discard())
	require.NoError(t, err)
	closeFn()
	assert.NotNil(t, store)

	cfg.LeadStore = "sheets"
	_, _, err = BuildLeadStore(ctx, cfg, logging.Discard())
	assert.ErrorContains(t, err, "SHEETS_SPREADSHEET_ID")

	cfg.LeadStore = "postgres"
	_, _, err = BuildLeadStore(ctx, cfg, logging.Discard())
	assert.ErrorContains(t, err, "DATABASE_URL")

	cfg.LeadStore = "csv"
	_, _, err = BuildLeadStore(ctx, cfg, logging.Discard())
	assert.Error(t, err)
}

func TestBuildLockers(t *testing.T) {
	cfg := baseConfig()
	cfg.CycleLockBackend = "auto"
	cfg.CycleLockDir = t.TempDir()

	cycle, lead, err := BuildLockers(cfg, nil, logging.Discard())
	require.NoError(t, err)
	assert.IsType(t, &locks.FileLocker{}, cycle)
	assert.IsType(t, &locks.LocalLocker{}, lead)

	mr := miniredis.RunT(t)
	cfg.RedisAddr = mr.Addr()
	client := BuildRedisClient(context.Background(), cfg, logging.Discard(), true)
	require.NotNil(t, client)
	defer client.Close()

	cycle, _, err = BuildLockers(cfg, client, logging.Discard())
	require.NoError(t, err)
	assert.IsType(t, &locks.RedisLocker{}, cycle)
	assert.IsType(t, &outreach.RedisJournal{}, BuildJournal(client))
	assert.IsType(t, &outreach.MemoryJournal{}, BuildJournal(nil))

	cfg.CycleLockBackend = "redis"
	_, _, err = BuildLockers(cfg, nil, logging.Discard())
	assert.Error(t, err)
}

func TestBuildRedisClientUnreachable(t *testing.T) {
	cfg := baseConfig()
	assert.Nil(t, BuildRedisClient(context.Background(), cfg, logging.Discard(), true))

	cfg.RedisAddr = "127.0.0.1:1"
	assert.Nil(t, BuildRedisClient(context.Background(), cfg, logging.Discard(), true))
}

func TestBuildSendersAndAccounts(t *testing.T) {
	cfg := baseConfig()
	senders, err := BuildSenders(cfg)
	require.NoError(t, err)
	require.Len(t, senders, 1)
	assert.Empty(t, MailboxAccounts(senders, ""))

	path := filepath.Join(t.TempDir(), "senders.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`senders:
  - email: sam@agency.test
    name: Sam
    imap_password: app-pass
  - email: kim@agency.test
    name: Kim
`), 0o600))
	cfg.SendersFile = path
	senders, err = BuildSenders(cfg)
	require.NoError(t, err)
	require.Len(t, senders, 2)

	accounts := MailboxAccounts(senders, "shared-pass")
	require.Len(t, accounts, 2)
	assert.Equal(t, "app-pass", accounts[0].Password)
	assert.Equal(t, "shared-pass", accounts[1].Password)

	cfg.SendersFile = ""
	cfg.SenderEmail = ""
	_, err = BuildSenders(cfg)
	assert.Error(t, err)
}

func TestBuildTransportFallsBackToStub(t *testing.T) {
	cfg := baseConfig()
	cfg.EmailProvider = "sendgrid"
	assert.IsType(t, &mailer.StubTransport{}, BuildTransport(cfg, aws.Config{}, logging.Discard()))

	cfg.SendGridAPIKey = "SG.test"
	assert.IsType(t, &mailer.SendGridTransport{}, BuildTransport(cfg, aws.Config{}, logging.Discard()))

	cfg.EmailProvider = "ses"
	assert.IsType(t, &mailer.SESTransport{}, BuildTransport(cfg, aws.Config{Region: "us-east-1"}, logging.Discard()))
}
