package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/vaani-ai/vaani-live/pkg/llm"
	"github.com/vaani-ai/vaani-live/pkg/retrieval"
	"github.com/vaani-ai/vaani-live/pkg/room"
	"github.com/vaani-ai/vaani-live/pkg/transcript"
)

// Modalities the core supports.
const (
	ModalityVoice = "voice"
	ModalityChat  = "chat"
)

// Canned tool responses. The LLM receives these as directives, never raw
// errors.
const (
	welcomeMessage         = "Hi! You've reached our customer service. I am your assistant, how can I help you today?"
	goodbyeMessage         = "Thank you for chatting with our customer service. Have a great day!"
	noNewContextDirective  = "No new context found. - 'Tell client that you are not aware of this and our team will reach out to you on this.'"
	searchFallback         = "Search temporarily unavailable. Please try again."
	validationFallback     = "Validation temporarily unavailable. Please continue."
	bookingConfirmation    = "I'll help you book an appointment. Let me get the available slots for you."
	bookingFallback        = "Booking temporarily unavailable. Our team will contact you to schedule."
	validationPleaseWait   = "Kindly ask customer to wait for few seconds as you are validating the information required for service booking."
	searchStallInstruction = "You are searching the knowledge base for %q but it is taking a little while. Update the user on your progress, but be very brief."
)

// Entities extracted during customer detail validation, in ask order.
var validationEntities = []llm.Field{
	{Name: "Name", Question: "What is the name of the user"},
	{Name: "Mobile_Number", Question: "What is contact mobile number used for booking service?"},
	{Name: "Approximate_Mileage", Question: "What is the mileage on the vehicle"},
	{Name: "Location_Area", Question: "what is the area/region where user wants services?"},
	{Name: "Specific_Location", Question: "What is the specific location within area where user wants service"},
}

// ValidationFields returns the entity table used both for mid-call detail
// validation and post-call transcript extraction.
func ValidationFields() []llm.Field {
	return validationEntities
}

// Sender delivers a user-visible message over the session's transport. It
// must never fail loudly; transport absence is logged and swallowed so tool
// flows survive a torn-down room.
type Sender interface {
	SendMessage(ctx context.Context, content, messageType string)
}

// Dependencies carries the collaborators shared by both agent variants.
// Zero fields are defaulted by NewCore.
type Dependencies struct {
	Logger     *slog.Logger
	Runner     llm.Runner
	Enricher   retrieval.Enricher
	Transcript *transcript.Manager

	// PersistEnd writes the terminal record for the modality-appropriate
	// store. Nil means session ends are not persisted (console mode).
	PersistEnd func(ctx context.Context, reason string) error

	// Now and Sleep are injectable for tests.
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration)

	// ShowToolCalls narrates tool progress to the user when set.
	ShowToolCalls bool

	// StallTimeout is how long a knowledge search may run before the voice
	// variant speaks a progress update. Zero means 4s.
	StallTimeout time.Duration
}

// Core is the modality-agnostic half of an agent: prompt, tool contract, and
// idempotent session-end recording. A variant supplies the Sender and any
// speech hooks.
type Core struct {
	name         string
	instructions string
	modality     string
	contact      ContactInfo
	state        *SessionState
	deps         Dependencies

	sender Sender

	// stall asks the conversational runtime to speak an interim update while
	// a slow tool runs. Voice only; nil elsewhere.
	stall func(ctx context.Context, instructions string)

	seen map[string]struct{}
}

// NewCore loads and prepares the prompt template, then builds the shared
// core. The Sender is attached afterwards by the variant.
func NewCore(agentName string, contact ContactInfo, state *SessionState, promptPath, modality string, deps Dependencies) (*Core, error) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Sleep == nil {
		deps.Sleep = func(ctx context.Context, d time.Duration) {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-t.C:
			case <-ctx.Done():
			}
		}
	}
	if deps.Transcript == nil {
		deps.Transcript = transcript.NewManager()
	}
	if deps.StallTimeout == 0 {
		deps.StallTimeout = 4 * time.Second
	}

	instructions, err := LoadPrompt(promptPath, contact, deps.Now())
	if err != nil {
		return nil, err
	}

	c := &Core{
		name:         agentName,
		instructions: instructions,
		modality:     modality,
		contact:      contact,
		state:        state,
		deps:         deps,
		seen:         make(map[string]struct{}),
	}
	c.deps.Logger.Info("initialized agent", "modality", modality, "agent", agentName)
	return c, nil
}

func (c *Core) Name() string         { return c.name }
func (c *Core) Modality() string     { return c.modality }
func (c *Core) Instructions() string { return c.instructions }
func (c *Core) State() *SessionState { return c.state }
func (c *Core) Contact() ContactInfo { return c.contact }

func (c *Core) setSender(s Sender)                                       { c.sender = s }
func (c *Core) setStall(fn func(ctx context.Context, instructions string)) { c.stall = fn }

func (c *Core) send(ctx context.Context, content, messageType string) {
	if c.sender == nil {
		c.deps.Logger.Warn("cannot send message: no transport attached", "type", messageType)
		return
	}
	c.sender.SendMessage(ctx, content, messageType)
}

// narrate emits tool progress when show_tool_call_in_chat is enabled. Purely
// observability; never gates tool execution.
func (c *Core) narrate(ctx context.Context, tool, query, status, result string, elapsed time.Duration, errMsg string) {
	if !c.deps.ShowToolCalls {
		return
	}
	switch status {
	case "start":
		msg := "Executing: " + tool
		if query != "" {
			msg += fmt.Sprintf("\nQuery: %q", query)
		}
		c.send(ctx, msg, room.TypeToolStart)
	case "success":
		msg := fmt.Sprintf("Completed in %.1fs", elapsed.Seconds())
		if result != "" {
			msg += "\n" + result
		}
		c.send(ctx, msg, room.TypeToolSuccess)
	case "error":
		msg := fmt.Sprintf("Failed in %.1fs", elapsed.Seconds())
		if errMsg != "" {
			msg += "\n" + errMsg
		}
		c.send(ctx, msg, room.TypeToolError)
	}
}

// SearchKnowledgeBase looks up knowledge fragments for the query. Fragments
// already returned earlier in the session are filtered out and at most two
// new ones are returned. Failures degrade to a user-safe fallback string.
func (c *Core) SearchKnowledgeBase(ctx context.Context, query string) string {
	start := c.deps.Now()
	c.narrate(ctx, "search_knowledge_base", query, "start", "", 0, "")

	// In voice mode, speak a brief progress update if retrieval stalls.
	// Cancelled the moment retrieval completes.
	var cancelStall context.CancelFunc
	if c.modality == ModalityVoice && c.stall != nil {
		var stallCtx context.Context
		stallCtx, cancelStall = context.WithCancel(ctx)
		go func() {
			c.deps.Sleep(stallCtx, c.deps.StallTimeout)
			if stallCtx.Err() != nil {
				return
			}
			c.stall(stallCtx, fmt.Sprintf(searchStallInstruction, query))
		}()
	}

	results, err := c.enrich(ctx, query)
	if cancelStall != nil {
		cancelStall()
	}
	elapsed := c.deps.Now().Sub(start)

	if err != nil {
		c.deps.Logger.Error("knowledge base search failed", "query", query, "error", err)
		c.narrate(ctx, "search_knowledge_base", query, "error", "", elapsed, "Search failed: "+err.Error())
		return searchFallback
	}

	var fresh []string
	for _, r := range results {
		if _, dup := c.seen[r]; !dup {
			fresh = append(fresh, r)
		}
	}
	if len(fresh) == 0 {
		c.narrate(ctx, "search_knowledge_base", query, "success", "No new context found", elapsed, "")
		return noNewContextDirective
	}
	if len(fresh) > 2 {
		fresh = fresh[:2]
	}
	for _, r := range fresh {
		c.seen[r] = struct{}{}
	}

	var b strings.Builder
	for i, r := range fresh {
		fmt.Fprintf(&b, "\n context %d: %s\n", i, r)
	}
	c.narrate(ctx, "search_knowledge_base", query, "success",
		fmt.Sprintf("Found %d relevant documents", len(fresh)), elapsed, "")
	return b.String()
}

func (c *Core) enrich(ctx context.Context, query string) ([]string, error) {
	if c.deps.Enricher == nil {
		return nil, fmt.Errorf("no retrieval collaborator configured")
	}
	return c.deps.Enricher.Enrich(ctx, query)
}

// ValidateCustomerDetails extracts the booking entities from the running
// transcript and either confirms completeness or returns a directive listing
// the questions still to ask. Parse failures degrade to "noted".
func (c *Core) ValidateCustomerDetails(ctx context.Context) string {
	start := c.deps.Now()
	c.narrate(ctx, "validate_customer_details", "", "start", "", 0, "")

	if c.modality == ModalityVoice && c.stall != nil {
		c.stall(ctx, validationPleaseWait)
	}

	if c.deps.Runner == nil {
		c.deps.Logger.Error("validation failed: no prompt runner configured")
		return validationFallback
	}

	prompt := llm.ExtractionPrompt(c.deps.Transcript.Snapshot(), validationEntities)
	raw, err := c.deps.Runner.Run(ctx, prompt)
	elapsed := c.deps.Now().Sub(start)
	if err != nil {
		c.deps.Logger.Error("entity extraction failed", "error", err)
		c.narrate(ctx, "validate_customer_details", "", "error", "", elapsed, "Validation failed: "+err.Error())
		return validationFallback
	}

	var extracted map[string]struct {
		Value string `json:"value"`
	}
	if err := json.Unmarshal([]byte(llm.StripJSONFence(raw)), &extracted); err != nil {
		c.deps.Logger.Error("failed to parse entity extraction response", "error", err)
		c.narrate(ctx, "validate_customer_details", "", "error", "", elapsed, "Failed to parse validation results")
		return "noted"
	}

	var missing []llm.Field
	for _, f := range validationEntities {
		if extracted[f.Name].Value == llm.NotMentioned {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		var lines []string
		for _, f := range missing {
			lines = append(lines, f.Name+": "+f.Question)
		}
		c.narrate(ctx, "validate_customer_details", "", "success",
			fmt.Sprintf("Missing %d details", len(missing)), elapsed, "")
		return fmt.Sprintf("Ask user about following missing informations: %q. Ask casually and be very crisp.",
			strings.Join(lines, "\n"))
	}

	c.narrate(ctx, "validate_customer_details", "", "success", "All details validated successfully", elapsed, "")
	return "All details validated. Confirm the booking information with the user."
}

// BookAppointment simulates the external scheduling call.
func (c *Core) BookAppointment(ctx context.Context) string {
	start := c.deps.Now()
	c.narrate(ctx, "book_service_appointment", "", "start", "", 0, "")

	c.deps.Sleep(ctx, time.Second)
	elapsed := c.deps.Now().Sub(start)
	if ctx.Err() != nil {
		c.deps.Logger.Error("booking aborted", "error", ctx.Err())
		c.narrate(ctx, "book_service_appointment", "", "error", "", elapsed, "Booking failed: "+ctx.Err().Error())
		return bookingFallback
	}

	c.narrate(ctx, "book_service_appointment", "", "success", "Appointment slot reserved", elapsed, "")
	c.deps.Logger.Info("booking appointment initiated")
	return bookingConfirmation
}

// RecordSessionEnd finalizes the session at most once. The guard flips before
// any I/O so concurrent termination triggers cannot double-write; a failed
// persistence is logged but the flag stays set.
func (c *Core) RecordSessionEnd(ctx context.Context, reason string) {
	if !c.state.Started() || c.state.EndRecorded() {
		return
	}
	if !c.state.MarkEndRecorded() {
		return
	}
	if c.deps.PersistEnd == nil {
		c.deps.Logger.Info("session end recorded", "room", c.state.RoomName(), "reason", reason)
		return
	}
	if err := c.deps.PersistEnd(ctx, reason); err != nil {
		c.deps.Logger.Error("failed to persist session end",
			"room", c.state.RoomName(), "reason", reason, "error", err)
		return
	}
	c.deps.Logger.Info("session end recorded", "room", c.state.RoomName(), "reason", reason)
}
