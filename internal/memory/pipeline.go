// ABOUTME: Incremental memory pipeline over contact message logs
// ABOUTME: Two-stage gate/generate protocol with processed-index checkpoints
package memory

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/junelab/palmchat/internal/database"
	"github.com/junelab/palmchat/internal/llm"
	"github.com/junelab/palmchat/internal/models"
)

// Default trigger thresholds: new non-special user messages after the
// checkpoint before the pipeline runs.
const (
	DefaultPrivateThreshold = 3
	DefaultGroupThreshold   = 1

	gateMaxTokens     = 5000
	generateMaxTokens = 10000

	gateTemperature     = 0.1
	generateTemperature = 0.3

	countersKey     = "counters"
	globalMemoryKey = "memory"
)

// Config tunes the pipeline. Zero values fall back to the defaults.
type Config struct {
	PrivateThreshold int
	GroupThreshold   int
}

// Result reports what one pipeline invocation did. The pipeline is a
// background best-effort process: errors are logged, never surfaced.
type Result struct {
	Triggered bool
	GateAsked bool
	Updated   bool
}

// Pipeline watches contact message logs and maintains per-contact and
// global memory documents through the chat-model capability.
type Pipeline struct {
	db     *database.Manager
	caller llm.Caller
	cfg    Config

	mu            sync.Mutex
	lastProcessed map[string]int // contactId → checkpoint, default -1
	counters      map[string]int
	loaded        bool
}

// NewPipeline wires the pipeline to its stores and model capability.
func NewPipeline(db *database.Manager, caller llm.Caller, cfg Config) *Pipeline {
	if cfg.PrivateThreshold <= 0 {
		cfg.PrivateThreshold = DefaultPrivateThreshold
	}
	if cfg.GroupThreshold <= 0 {
		cfg.GroupThreshold = DefaultGroupThreshold
	}
	return &Pipeline{
		db:            db,
		caller:        caller,
		cfg:           cfg,
		lastProcessed: make(map[string]int),
		counters:      make(map[string]int),
	}
}

// LastProcessedIndex returns the in-memory checkpoint for a contact,
// -1 when nothing has been processed.
func (p *Pipeline) LastProcessedIndex(contactID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if idx, ok := p.lastProcessed[contactID]; ok {
		return idx
	}
	return -1
}

// loadState hydrates the in-memory caches from disk once. Disk is
// authoritative across restarts.
func (p *Pipeline) loadState(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.loaded {
		return
	}
	docs, err := p.db.GetAll(ctx, "memoryProcessedIndex")
	if err == nil {
		for _, doc := range docs {
			id, _ := doc["contactId"].(string)
			idx, ok := doc["lastIndex"].(float64)
			if id != "" && ok {
				p.lastProcessed[id] = int(idx)
			}
		}
	}
	counters, err := p.db.Get(ctx, "conversationCounters", countersKey)
	if err == nil && counters != nil {
		for k, v := range counters {
			if k == "id" {
				continue
			}
			if n, ok := v.(float64); ok {
				p.counters[k] = int(n)
			}
		}
	}
	p.loaded = true
}

// checkpointAdvance moves the checkpoint and mirrors it to disk without
// stalling the trigger path.
func (p *Pipeline) checkpointAdvance(contactID string, lastIndex, counter int) {
	p.mu.Lock()
	p.lastProcessed[contactID] = lastIndex
	p.counters[contactID] = counter
	p.mu.Unlock()

	go func() {
		ctx := context.Background()
		if _, err := p.db.PutValue(ctx, "memoryProcessedIndex",
			models.ProcessedIndex{ContactID: contactID, LastIndex: lastIndex}); err != nil {
			log.Printf("[Memory] checkpoint persist failed for %s: %v", contactID, err)
		}
		doc, err := p.db.Get(ctx, "conversationCounters", countersKey)
		if err != nil {
			return
		}
		if doc == nil {
			doc = map[string]any{"id": countersKey}
		}
		doc[contactID] = counter
		if _, err := p.db.Put(ctx, "conversationCounters", doc); err != nil {
			log.Printf("[Memory] counter persist failed for %s: %v", contactID, err)
		}
	}()
}

// settings loads the readiness preconditions: contact list reachable, the
// api settings record present, a model URL configured, and the capability
// wired. Any missing piece returns false and the pipeline silently no-ops.
func (p *Pipeline) settings(ctx context.Context) (*models.APISettings, bool) {
	if p.caller == nil {
		return nil, false
	}
	var s models.APISettings
	ok, err := p.db.GetInto(ctx, "apiSettings", "settings", &s)
	if err != nil || !ok {
		return nil, false
	}
	if s.URL == "" || s.Model == "" {
		return nil, false
	}
	if _, err := p.db.Count(ctx, "contacts"); err != nil {
		return nil, false
	}
	return &s, true
}

// ProcessContact runs the trigger rule for one contact and, when it fires,
// the two-stage model protocol. forceCheck skips the threshold (page-unload
// path) but still requires at least one new user message.
func (p *Pipeline) ProcessContact(ctx context.Context, contactID string, forceCheck bool) Result {
	var res Result

	settings, ready := p.settings(ctx)
	if !ready {
		return res
	}
	p.loadState(ctx)

	var contact models.Contact
	ok, err := p.db.GetInto(ctx, "contacts", contactID, &contact)
	if err != nil || !ok {
		return res
	}

	checkpoint := p.LastProcessedIndex(contactID)
	if checkpoint >= len(contact.Messages) {
		checkpoint = len(contact.Messages) - 1
	}
	fresh := contact.Messages[checkpoint+1:]

	var newUser []models.Message
	for _, m := range fresh {
		if m.IsUserText() {
			newUser = append(newUser, m)
		}
	}
	if len(newUser) == 0 {
		return res
	}

	threshold := p.cfg.PrivateThreshold
	if contact.IsGroup {
		threshold = p.cfg.GroupThreshold
	}
	if !forceCheck && len(newUser) < threshold {
		p.mu.Lock()
		p.counters[contactID] = len(newUser)
		p.mu.Unlock()
		return res
	}
	res.Triggered = true

	var text strings.Builder
	for i, m := range newUser {
		if i > 0 {
			text.WriteString("\n")
		}
		text.WriteString(m.Content)
	}

	if contact.IsGroup && len(contact.Members) > 0 {
		// Each group member keeps its own memory of the user.
		for _, memberID := range contact.Members {
			r := p.updateMemory(ctx, settings, memberID, memberPersona(ctx, p.db, memberID, contact), contact.UserPersona, text.String())
			res.GateAsked = res.GateAsked || r.GateAsked
			res.Updated = res.Updated || r.Updated
		}
	} else {
		r := p.updateMemory(ctx, settings, contactID, contact.Persona, contact.UserPersona, text.String())
		res.GateAsked = r.GateAsked
		res.Updated = r.Updated
	}

	// The checkpoint advances whenever the trigger fires, whether or not an
	// update occurred. The generator takes the full prior memory as input,
	// so a crash before this line only costs a redundant regeneration.
	p.checkpointAdvance(contactID, len(contact.Messages)-1, 0)
	return res
}

func memberPersona(ctx context.Context, db *database.Manager, memberID string, group models.Contact) string {
	var member models.Contact
	if ok, err := db.GetInto(ctx, "contacts", memberID, &member); err == nil && ok {
		return member.Persona
	}
	return group.Persona
}

// updateMemory runs gate then generate for one memory document.
func (p *Pipeline) updateMemory(ctx context.Context, settings *models.APISettings, contactID, persona, userPersona, newUserText string) Result {
	var res Result

	var mem models.CharacterMemory
	found, err := p.db.GetInto(ctx, "characterMemories", contactID, &mem)
	if err != nil {
		log.Printf("[Memory] load memory for %s: %v", contactID, err)
		return res
	}
	if !found {
		mem = models.CharacterMemory{ContactID: contactID}
	}

	res.GateAsked = true
	reply, ok := p.ask(ctx, settings, settings.GateModel(), gatePrompt(mem.Memory, newUserText), gateTemperature, gateMaxTokens)
	if !ok || !gateIsPositive(reply) {
		return res
	}

	updated, ok := p.ask(ctx, settings, settings.Model, generatePrompt(persona, userPersona, mem.Memory, newUserText), generateTemperature, generateMaxTokens)
	if !ok {
		return res
	}

	mem.Memory = strings.TrimSpace(updated)
	mem.UpdateCount++
	mem.UpdatedAt = models.Now()
	if _, err := p.db.PutValue(ctx, "characterMemories", mem); err != nil {
		log.Printf("[Memory] write memory for %s: %v", contactID, err)
		return res
	}
	res.Updated = true
	return res
}

// ProcessDeleted prunes memory after the UI deletes a slice of messages.
func (p *Pipeline) ProcessDeleted(ctx context.Context, contactID string, deleted []models.Message) Result {
	var res Result

	settings, ready := p.settings(ctx)
	if !ready {
		return res
	}

	var lines []string
	for _, m := range deleted {
		if m.IsUserText() {
			lines = append(lines, m.Content)
		}
	}
	if len(lines) == 0 {
		return res
	}

	var mem models.CharacterMemory
	found, err := p.db.GetInto(ctx, "characterMemories", contactID, &mem)
	if err != nil || !found || strings.TrimSpace(mem.Memory) == "" {
		return res
	}
	deletedText := strings.Join(lines, "\n")
	res.Triggered = true

	res.GateAsked = true
	reply, ok := p.ask(ctx, settings, settings.GateModel(), deletionGatePrompt(mem.Memory, deletedText), gateTemperature, gateMaxTokens)
	if !ok || !deletionGateIsPositive(reply) {
		return res
	}

	pruned, ok := p.ask(ctx, settings, settings.Model, deletionGeneratePrompt(mem.Memory, deletedText), generateTemperature, generateMaxTokens)
	if !ok {
		return res
	}

	mem.Memory = strings.TrimSpace(pruned)
	mem.UpdatedAt = models.Now()
	if _, err := p.db.PutValue(ctx, "characterMemories", mem); err != nil {
		log.Printf("[Memory] prune memory for %s: %v", contactID, err)
		return res
	}
	res.Updated = true
	return res
}

// ProcessGlobal updates the global memory document from forum content using
// the same two-stage protocol.
func (p *Pipeline) ProcessGlobal(ctx context.Context, forumContent string) Result {
	var res Result

	settings, ready := p.settings(ctx)
	if !ready || strings.TrimSpace(forumContent) == "" {
		return res
	}

	var global models.GlobalMemory
	found, err := p.db.GetInto(ctx, "globalMemory", globalMemoryKey, &global)
	if err != nil {
		return res
	}
	if !found {
		global = models.GlobalMemory{ID: globalMemoryKey}
	}
	res.Triggered = true

	res.GateAsked = true
	reply, ok := p.ask(ctx, settings, settings.GateModel(), globalGatePrompt(global.Content, forumContent), gateTemperature, gateMaxTokens)
	if !ok || !gateIsPositive(reply) {
		return res
	}

	updated, ok := p.ask(ctx, settings, settings.Model, globalGeneratePrompt(global.Content, forumContent), generateTemperature, generateMaxTokens)
	if !ok {
		return res
	}

	global.Content = strings.TrimSpace(updated)
	global.UpdatedAt = models.Now()
	if _, err := p.db.PutValue(ctx, "globalMemory", global); err != nil {
		log.Printf("[Memory] write global memory: %v", err)
		return res
	}
	res.Updated = true
	return res
}

// ProcessAllPending is the page-unload path: every contact with any new
// user message is processed regardless of threshold.
func (p *Pipeline) ProcessAllPending(ctx context.Context) {
	if _, ready := p.settings(ctx); !ready {
		return
	}
	p.loadState(ctx)
	contacts, err := p.db.GetAll(ctx, "contacts")
	if err != nil {
		return
	}
	for _, doc := range contacts {
		if id, ok := doc["id"].(string); ok && id != "" {
			p.ProcessContact(ctx, id, true)
		}
	}
}

// ask performs one model call and validates the response defensively. Any
// failure — error, timeout, missing choices, blank content — reports false:
// the pipeline never lets a model problem break the chat.
func (p *Pipeline) ask(ctx context.Context, settings *models.APISettings, model, prompt string, temperature float32, maxTokens int) (string, bool) {
	timeout := llm.DefaultTimeout
	if settings.TimeoutSeconds > 0 {
		timeout = time.Duration(settings.TimeoutSeconds) * time.Second
	}
	req := llm.Request{
		URL:         settings.URL,
		Key:         settings.Key,
		Model:       model,
		Messages:    []llm.Message{{Role: "user", Content: prompt}},
		Temperature: temperature,
		MaxTokens:   maxTokens,
		Timeout:     timeout,
	}
	resp, err := p.caller.CallChatModel(ctx, req)
	if err != nil {
		log.Printf("[Memory] model call failed: %v", err)
		return "", false
	}
	content, ok := resp.Content()
	if !ok {
		log.Printf("[Memory] model returned an unusable response")
		return "", false
	}
	return content, true
}
