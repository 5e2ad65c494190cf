package chat

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/qianniu/llmbot/internal/ai"
	"github.com/qianniu/llmbot/internal/auth"
	"github.com/qianniu/llmbot/internal/models"
	"github.com/qianniu/llmbot/internal/registry"
	"github.com/qianniu/llmbot/internal/user"
)

var (
	ErrUnknownModel     = errors.New("chat: unknown model")
	ErrProviderMismatch = errors.New("chat: model does not belong to this provider")
	ErrBlankPrompt      = errors.New("chat: prompt must not be blank")
)

// DeniedError carries the entitlement refusal reason to the handler.
type DeniedError struct {
	Reason string
}

func (e *DeniedError) Error() string { return e.Reason }

// DemotedError rejects a request whose membership lapsed during
// authorization. Token is the fresh NORMAL-tier credential the client
// must switch to before retrying.
type DemotedError struct {
	Token string
}

func (e *DemotedError) Error() string { return "membership expired, credential reissued" }

// Request is one streaming chat invocation.
type Request struct {
	ModelName    string `json:"modelName" binding:"required"`
	Prompt       string `json:"prompt"`
	IsNewChat    bool   `json:"isNewChat"`
	HisMsgNumber int    `json:"hisMsgNumber"`
}

// Stream is a live exchange of base64-encoded protocol lines.
type Stream struct {
	Lines <-chan []byte
}

const transformWorkers = 4

// Service orchestrates a chat exchange end to end: entitlement,
// history assembly, upstream streaming, chunk reframing, and async
// persistence.
type Service struct {
	models   *registry.Repo
	users    *user.Repo
	ents     *auth.Entitlements
	history  *HistoryAssembler
	recorder *Recorder

	// historyCap bounds history rows per request no matter what the
	// model row or the client asks for.
	historyCap int
}

func NewService(modelRepo *registry.Repo, userRepo *user.Repo, ents *auth.Entitlements, history *HistoryAssembler, recorder *Recorder, historyCap int) *Service {
	if historyCap <= 0 {
		historyCap = 20
	}
	return &Service{
		models:     modelRepo,
		users:      userRepo,
		ents:       ents,
		history:    history,
		recorder:   recorder,
		historyCap: historyCap,
	}
}

// Open validates and authorizes the request, then starts the exchange.
// Validation and entitlement failures return an error before any bytes
// stream; once Open succeeds, every subsequent failure is delivered
// in-band as an error chunk on Lines.
func (s *Service) Open(ctx context.Context, providerName string, ident auth.Identity, req Request) (*Stream, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, ErrBlankPrompt
	}

	model, err := s.models.GetByName(ctx, req.ModelName)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownModel, req.ModelName)
		}
		return nil, err
	}
	if !strings.EqualFold(model.Provider, providerName) {
		return nil, fmt.Errorf("%w: %s is served by %s", ErrProviderMismatch, model.Name, model.Provider)
	}

	provider, err := ai.LookupProvider(providerName)
	if err != nil {
		return nil, err
	}

	decision, err := s.ents.Authorize(ctx, ident, model)
	if err != nil {
		return nil, err
	}
	switch decision.Kind {
	case auth.DecisionDenied:
		return nil, &DeniedError{Reason: decision.Reason}
	case auth.DecisionDemoted:
		return nil, &DemotedError{Token: decision.Token}
	}

	u, err := s.users.GetByEmail(ctx, ident.Email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &DeniedError{Reason: auth.ReasonStaleCredential}
		}
		return nil, err
	}

	lines := make(chan []byte, 16)
	go s.run(ctx, provider, model, u, req, lines)
	return &Stream{Lines: lines}, nil
}

// run drives one exchange. All failures past this point become in-band
// error chunks; the channel closing marks the end of the stream.
func (s *Service) run(ctx context.Context, provider *ai.Provider, model *registry.Model, u *models.User, req Request, lines chan<- []byte) {
	defer close(lines)

	fail := func(err error, raw string) {
		line, encErr := encodeLine(ai.NewErrorChunk(err, raw))
		if encErr != nil {
			log.Errorf("encode error chunk: %v", encErr)
			return
		}
		emit(ctx, lines, line)
	}

	var history []ai.Turn
	if !req.IsNewChat {
		limit := model.RecordNumbers
		if limit > s.historyCap {
			limit = s.historyCap
		}
		convID := ConversationID(model.Name, u.UUID)
		var err error
		history, err = s.history.Assemble(ctx, convID, limit, req.HisMsgNumber)
		if err != nil {
			fail(fmt.Errorf("assemble history: %w", err), "")
			return
		}
	}

	params, err := model.Params()
	if err != nil {
		fail(fmt.Errorf("%w: model parameters: %v", ai.ErrMalformedChunk, err), "")
		return
	}
	payload, err := provider.Reframer.BuildPayload(params, history, req.Prompt)
	if err != nil {
		fail(err, "")
		return
	}

	chunks, errs := provider.Client.Stream(ctx, model.URL, payload)

	caller := ai.Caller{UserID: u.UUID, NickName: u.Name}
	answer, usage, ok := s.reframe(ctx, provider.Reframer, model.Name, caller, chunks, lines, fail)

	if err := <-errs; err != nil {
		if ok {
			fail(err, "")
		}
		return
	}
	if !ok || answer == "" {
		return
	}

	s.recorder.Enqueue(&Message{
		BotName:          model.Name,
		UserID:           u.UUID,
		UserName:         u.Name,
		ConversationID:   ConversationID(model.Name, u.UUID),
		TotalTokenNumber: usage.TotalTokens,
		QueryContent:     req.Prompt,
		QueryType:        "text",
		QueryTokens:      usage.PromptTokens,
		AnswerContent:    answer,
		AnswerType:       "text",
		AnswerTokens:     usage.AnswerTokens,
	})
}

type transformJob struct {
	seq int
	raw []byte
}

type transformResult struct {
	seq   int
	line  []byte
	delta string
	last  bool
	usage ai.Usage
	raw   []byte
	err   error
}

// reframe fans raw chunks across a worker pool, reorders results by
// sequence, and emits protocol lines. A chunk that fails to transform
// is replaced by one in-band error chunk and the stream moves on to
// the next raw chunk. It returns the accumulated answer, the terminal
// usage, and whether the client stayed reachable.
func (s *Service) reframe(ctx context.Context, rf ai.Reframer, modelName string, caller ai.Caller, chunks <-chan []byte, lines chan<- []byte, fail func(error, string)) (string, ai.Usage, bool) {
	jobs := make(chan transformJob, transformWorkers)
	results := make(chan transformResult, transformWorkers)

	var wg sync.WaitGroup
	for i := 0; i < transformWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				results <- transform(rf, modelName, caller, j)
			}
		}()
	}
	go func() {
		wg.Wait()
		close(results)
	}()
	go func() {
		defer close(jobs)
		seq := 0
		for raw := range chunks {
			select {
			case jobs <- transformJob{seq: seq, raw: raw}:
				seq++
			case <-ctx.Done():
				return
			}
		}
	}()

	var answer strings.Builder
	var usage ai.Usage
	pending := make(map[int]transformResult)
	next := 0
	healthy := true
	for res := range results {
		pending[res.seq] = res
		for {
			r, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			next++
			if !healthy {
				continue
			}
			if r.err != nil {
				fail(r.err, string(r.raw))
				continue
			}
			if !emit(ctx, lines, r.line) {
				healthy = false
				continue
			}
			answer.WriteString(r.delta)
			if r.last {
				usage = r.usage
			}
		}
	}
	return answer.String(), usage, healthy
}

// transform builds the canonical chunk for one raw provider chunk.
// Sequence zero is always the opening chunk, even when the provider
// finishes in a single frame.
func transform(rf ai.Reframer, modelName string, caller ai.Caller, j transformJob) transformResult {
	res := transformResult{seq: j.seq, raw: j.raw, delta: rf.Delta(j.raw), last: rf.IsLast(j.raw)}

	var chunk ai.Chunk
	var err error
	switch {
	case j.seq == 0:
		chunk, err = rf.BuildFirst(j.raw, modelName, caller)
		if err == nil && res.last {
			chunk.TokenInfo = ai.NewTokenInfo(rf.Usage(j.raw))
		}
	case res.last:
		chunk, err = rf.BuildLast(j.raw)
	default:
		chunk, err = rf.BuildMiddle(j.raw)
	}
	if err != nil {
		res.err = err
		return res
	}
	if res.last {
		res.usage = rf.Usage(j.raw)
	}
	res.line, res.err = encodeLine(chunk)
	return res
}

// encodeLine marshals v and frames it as one base64 protocol line.
func encodeLine(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode chunk: %w", err)
	}
	buf := make([]byte, base64.StdEncoding.EncodedLen(len(raw))+1)
	base64.StdEncoding.Encode(buf, raw)
	buf[len(buf)-1] = '\n'
	return buf, nil
}

func emit(ctx context.Context, lines chan<- []byte, line []byte) bool {
	select {
	case lines <- line:
		return true
	case <-ctx.Done():
		return false
	}
}
