package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/mindcure-agent/internal/browser"
	"github.com/ashureev/mindcure-agent/internal/domain"
	"github.com/ashureev/mindcure-agent/internal/identity"
	"github.com/ashureev/mindcure-agent/internal/retrieval"
	"github.com/ashureev/mindcure-agent/internal/scores"
)

// Tool names.
const (
	KnowledgeQueryFast         = "knowledge_query_fast"
	KnowledgeQueryDeep         = "knowledge_query_deep"
	AutomationTask             = "automation_task"
	BrowserAutomationTask      = "browser_automation_task"
	FindTherapists             = "find_therapists"
	EmergencyResources         = "emergency_resources"
	GetDashboardData           = "get_dashboard_data"
	GetProductivityData        = "get_productivity_data"
	UpdateUserProgress         = "update_user_progress"
	GetCurrentScores           = "get_current_scores"
	ConnectToTherapist         = "connect_to_therapist"
	RecordMood                 = "record_mood"
	FunTask                    = "fun_task"
	SearchTherapistsInDatabase = "search_therapists_in_database"
)

const (
	defaultSpecialty    = "anxiety"
	defaultMaxResults   = 5
	maxTherapistResults = 20
)

var (
	errNoStore        = errors.New("store not configured")
	errNoAutomation   = errors.New("automation not configured")
	errAnonymous      = errors.New("request requires a signed-in user")
	errEmptyArgument  = errors.New("missing required argument")
	errNoRetrieval    = errors.New("knowledge source not configured")
	errNoSessionState = errors.New("session state not configured")
)

// Store is the subset of the repository used by tools.
type Store interface {
	SearchTherapists(ctx context.Context, specialty string, limit int) ([]domain.Therapist, error)
	CreateSessionRequest(ctx context.Context, req *domain.SessionRequest) error
	AddMoodEntry(ctx context.Context, entry *domain.MoodEntry) error
	AddFunTask(ctx context.Context, task *domain.PendingTask) error
}

// Deps are the process-wide collaborators of the tools. Any of them may be
// nil; calls that need a missing collaborator answer with their fallback.
type Deps struct {
	Fast         retrieval.Retriever
	Deep         retrieval.Retriever
	Automation   *browser.Dispatcher
	Store        Store
	DirectoryURL string
	Logger       *slog.Logger
	Observer     Observer
}

// Session is the per-session state the tools read and mutate.
type Session struct {
	UserID     string
	Scores     *scores.Board
	Automation *browser.Tracker
}

type funTaskSpec struct {
	name       string
	automation string
}

var funTasks = map[string]funTaskSpec{
	"block_ex":        {"Block the Ex", "open instagram to block an account"},
	"touch_grass":     {"Touch Grass", "find a park nearby on maps"},
	"rage_playlist":   {"Rage Playlist", "open spotify for a playlist"},
	"meme_therapy":    {"Meme Therapy", "show wholesome memes on reddit"},
	"hydration_check": {"Hydration Check", ""},
}

// Build returns the registry of all tools bound to one session.
func Build(deps Deps, s Session) *Registry {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.DirectoryURL == "" {
		deps.DirectoryURL = "localhost:3000/therapist-directory"
	}
	c := &catalog{deps: deps, s: s}
	return NewRegistry(c.tools(), deps.Logger, deps.Observer)
}

type catalog struct {
	deps Deps
	s    Session
}

func (c *catalog) tools() []Tool {
	return []Tool{
		{
			Name:        KnowledgeQueryFast,
			Description: "Quickly look up mental health information in the MindCure knowledge base. Use for most factual questions.",
			Params:      []Param{{Name: "query", Type: TypeString, Description: "The question to look up.", Required: true}},
			Handler:     c.query(func() retrieval.Retriever { return c.deps.Fast }),
			Fallback:    Static("I encountered an error while searching the knowledge base."),
		},
		{
			Name:        KnowledgeQueryDeep,
			Description: "Only use this when deep reasoning across several documents is needed. Slower than knowledge_query_fast.",
			Params:      []Param{{Name: "query", Type: TypeString, Description: "The complex question to research.", Required: true}},
			Handler:     c.query(func() retrieval.Retriever { return c.deps.Deep }),
			Fallback:    Static("I encountered an error while processing your complex query."),
		},
		{
			Name:        AutomationTask,
			Description: "Perform a web task for the user such as searching for services or opening a helpful website.",
			Params:      []Param{{Name: "task", Type: TypeString, Description: "Detailed description of the task.", Required: true}},
			Handler:     c.automationTask,
			Fallback:    Static("I encountered an issue with the automation. Let me help you with the information I have available instead."),
		},
		{
			Name:        BrowserAutomationTask,
			Description: "Run a browser automation task with live screenshots the user can watch in the app.",
			Params: []Param{
				{Name: "task", Type: TypeString, Description: "Detailed description of the browser task.", Required: true},
				{Name: "max_steps", Type: TypeInteger, Description: "Maximum number of automation steps.", Default: 50},
				{Name: "headless", Type: TypeBoolean, Description: "Whether to run the browser headless.", Default: true},
			},
			Handler: c.browserAutomationTask,
			Fallback: func(_ Args, err error) string {
				return fmt.Sprintf("I encountered an error while performing the browser automation task: %v. I can still help you with information I have available or try a different approach.", err)
			},
		},
		{
			Name:        FindTherapists,
			Description: "Search for mental health therapists in a specific location and specialty.",
			Params: []Param{
				{Name: "location", Type: TypeString, Description: "The city or area to search in.", Required: true},
				{Name: "specialty", Type: TypeString, Description: "Therapy specialization such as anxiety, depression, trauma or couples.", Default: defaultSpecialty},
			},
			Handler: c.findTherapists,
			Fallback: func(args Args, _ error) string {
				return fmt.Sprintf("I'd recommend checking our MindCure therapist directory (%s) or Psychology Today for therapists specializing in %s in %s.",
					c.deps.DirectoryURL, args.String("specialty"), args.String("location"))
			},
		},
		{
			Name:        EmergencyResources,
			Description: "Find immediate mental health crisis resources. Use this whenever someone needs urgent help or may be in crisis.",
			Params:      []Param{{Name: "location", Type: TypeString, Description: "The city or area to find crisis resources for.", Required: true}},
			Handler:     c.emergencyResources,
			Fallback:    Static("I'm having trouble finding specific crisis resources right now. Please remember these important numbers:\n\n" + CrisisNumbers),
		},
		{
			Name:        GetDashboardData,
			Description: "Get the user's dashboard: mental health score, productivity score, streak and recent activity.",
			Handler:     c.dashboard,
			Fallback:    Static("I'm having trouble accessing your dashboard data right now."),
		},
		{
			Name:        GetProductivityData,
			Description: "Get productivity center data: scores, today's tasks and weekly progress.",
			Handler:     c.productivity,
			Fallback:    Static("I'm having trouble accessing your productivity data right now."),
		},
		{
			Name:        UpdateUserProgress,
			Description: "Update the user's progress after completing an activity such as therapy, task, exercise, meditation or focus_session.",
			Params: []Param{
				{Name: "activity_type", Type: TypeString, Description: "Type of activity completed.", Required: true},
				{Name: "score_change", Type: TypeInteger, Description: "Points to add to both scores. 0 uses the activity's standard effect.", Default: 0},
			},
			Handler:  c.updateProgress,
			Fallback: Static("I had trouble updating your progress, but great job on completing that activity!"),
		},
		{
			Name:        GetCurrentScores,
			Description: "Get the user's current scores and stats. Use when the user asks about their progress.",
			Handler:     c.currentScores,
			Fallback:    Static("I'm having trouble accessing your current scores right now."),
		},
		{
			Name:        ConnectToTherapist,
			Description: "Send a request for a licensed therapist to follow up with the user.",
			Params: []Param{
				{Name: "issue_summary", Type: TypeString, Description: "Short summary of what the user needs help with.", Required: true},
				{Name: "urgency", Type: TypeString, Description: "One of normal, high, urgent or crisis.", Default: domain.UrgencyNormal},
			},
			Handler: c.connectToTherapist,
			Fallback: func(args Args, _ error) string {
				if domain.IsCrisisUrgency(strings.ToLower(args.String("urgency"))) {
					return "I couldn't reach our therapist network right now, and your safety matters most. Please call or text 988 for the Suicide & Crisis Lifeline, text HOME to 741741, or call 911 if you are in immediate danger."
				}
				return fmt.Sprintf("I couldn't send your request to a therapist right now. You can browse our therapist directory at %s, and I'm here to keep talking.", c.deps.DirectoryURL)
			},
		},
		{
			Name:        RecordMood,
			Description: "Record how the user is feeling on a scale of 1 to 10.",
			Params: []Param{
				{Name: "mood_score", Type: TypeInteger, Description: "Mood from 1 (very low) to 10 (great).", Required: true},
				{Name: "emotion", Type: TypeString, Description: "The main emotion, for example anxious or hopeful.", Required: true},
				{Name: "summary", Type: TypeString, Description: "One sentence about why the user feels this way.", Required: true},
			},
			Handler:  c.recordMood,
			Fallback: Static("I couldn't save your mood check-in right now, but thank you for sharing how you feel."),
		},
		{
			Name:        FunTask,
			Description: "Assign a playful wellness task: block_ex, touch_grass, rage_playlist, meme_therapy or hydration_check.",
			Params: []Param{
				{Name: "task_type", Type: TypeString, Description: "The kind of fun task.", Required: true},
				{Name: "details", Type: TypeString, Description: "Personal details that make the task specific.", Default: ""},
			},
			Handler:  c.funTask,
			Fallback: Static("I couldn't set up that task right now, but it's still a great idea to give it a try!"),
		},
		{
			Name:        SearchTherapistsInDatabase,
			Description: "Search MindCure's verified therapist directory for therapists accepting new clients.",
			Params: []Param{
				{Name: "specialty", Type: TypeString, Description: "Optional specialization to filter by."},
				{Name: "max_results", Type: TypeInteger, Description: "Maximum number of therapists to return.", Default: defaultMaxResults},
			},
			Handler: c.searchTherapists,
			Fallback: func(Args, error) string {
				return fmt.Sprintf("I'm having trouble searching our therapist directory right now. You can browse it at %s.", c.deps.DirectoryURL)
			},
		},
	}
}

func (c *catalog) query(source func() retrieval.Retriever) Handler {
	return func(ctx context.Context, args Args) (string, error) {
		r := source()
		if r == nil {
			return "", errNoRetrieval
		}
		q := args.String("query")
		if q == "" {
			return "", fmt.Errorf("%w: query", errEmptyArgument)
		}
		return r.Query(ctx, q)
	}
}

func (c *catalog) runAutomation(ctx context.Context, task string, plan *browser.Plan, opts browser.Options) (string, error) {
	if c.deps.Automation == nil {
		return "", errNoAutomation
	}
	if c.s.Automation == nil {
		return "", errNoSessionState
	}
	if plan != nil {
		return c.deps.Automation.Execute(ctx, c.s.Automation, task, *plan, opts)
	}
	return c.deps.Automation.Run(ctx, c.s.Automation, task, opts)
}

func (c *catalog) automationTask(ctx context.Context, args Args) (string, error) {
	task := args.String("task")
	if task == "" {
		return "", fmt.Errorf("%w: task", errEmptyArgument)
	}
	return c.runAutomation(ctx, task, nil, browser.Options{})
}

func (c *catalog) browserAutomationTask(ctx context.Context, args Args) (string, error) {
	task := args.String("task")
	if task == "" {
		return "", fmt.Errorf("%w: task", errEmptyArgument)
	}
	if !args.Bool("headless", true) {
		c.deps.Logger.Debug("headed browser requested, remote browser is always headless", "task", task)
	}
	return c.runAutomation(ctx, task, nil, browser.Options{
		Screenshots: true,
		MaxSteps:    args.Int("max_steps", 50),
	})
}

func (c *catalog) findTherapists(ctx context.Context, args Args) (string, error) {
	location := args.String("location")
	specialty := args.String("specialty")
	if specialty == "" {
		specialty = defaultSpecialty
	}
	text := directoryText(c.deps.DirectoryURL, location, specialty)

	task := fmt.Sprintf("Search for %s therapists in %s", specialty, location)
	external, err := c.runAutomation(ctx, task, nil, browser.Options{Screenshots: true})
	if err != nil {
		c.deps.Logger.Warn("external therapist search failed", "location", location, "error", err)
		return text, nil
	}
	return text + "\n\n**External Search Results**: " + external, nil
}

func (c *catalog) emergencyResources(ctx context.Context, args Args) (string, error) {
	location := args.String("location")
	plan := browser.CrisisPlan(location)
	result, err := c.runAutomation(ctx, "crisis resources "+location, &plan, browser.Options{Screenshots: true})
	if err != nil {
		return "", err
	}
	return result + "\n\n" + CrisisNumbers, nil
}

func (c *catalog) board() (*scores.Board, error) {
	if c.s.Scores == nil {
		return nil, errNoSessionState
	}
	return c.s.Scores, nil
}

func (c *catalog) dashboard(ctx context.Context, _ Args) (string, error) {
	b, err := c.board()
	if err != nil {
		return "", err
	}
	return formatDashboard(b.Dashboard(ctx)), nil
}

func (c *catalog) productivity(ctx context.Context, _ Args) (string, error) {
	b, err := c.board()
	if err != nil {
		return "", err
	}
	return formatProductivity(b.Productivity(ctx)), nil
}

func (c *catalog) updateProgress(ctx context.Context, args Args) (string, error) {
	b, err := c.board()
	if err != nil {
		return "", err
	}
	activity := args.String("activity_type")
	if activity == "" {
		return "", fmt.Errorf("%w: activity_type", errEmptyArgument)
	}
	u, err := b.Update(ctx, activity, args.Int("score_change", 0))
	if err != nil {
		return "", err
	}
	return formatUpdate(u), nil
}

func (c *catalog) currentScores(ctx context.Context, _ Args) (string, error) {
	b, err := c.board()
	if err != nil {
		return "", err
	}
	return formatScores(b.Current(ctx)), nil
}

func (c *catalog) signedInStore() (Store, error) {
	if c.deps.Store == nil {
		return nil, errNoStore
	}
	if !identity.IsUserID(c.s.UserID) {
		return nil, errAnonymous
	}
	return c.deps.Store, nil
}

func (c *catalog) connectToTherapist(ctx context.Context, args Args) (string, error) {
	st, err := c.signedInStore()
	if err != nil {
		return "", err
	}
	urgency := strings.ToLower(args.String("urgency"))
	switch urgency {
	case domain.UrgencyNormal, domain.UrgencyHigh, domain.UrgencyUrgent, domain.UrgencyCrisis:
	default:
		urgency = domain.UrgencyNormal
	}
	req := &domain.SessionRequest{
		UserID:       c.s.UserID,
		Urgency:      urgency,
		IssueSummary: args.String("issue_summary"),
		Status:       "pending",
		CreatedAt:    time.Now(),
	}
	if err := st.CreateSessionRequest(ctx, req); err != nil {
		return "", fmt.Errorf("create session request: %w", err)
	}

	msg := "I've sent your request to our therapist network. A licensed therapist will reach out to you soon."
	if domain.IsCrisisUrgency(urgency) {
		msg += " Because this feels urgent, please don't wait if things get worse:\n\n" + CrisisNumbers
	}
	return msg, nil
}

func (c *catalog) recordMood(ctx context.Context, args Args) (string, error) {
	b, err := c.board()
	if err != nil {
		return "", err
	}
	mood := args.Int("mood_score", 0)
	if mood < 1 || mood > 10 {
		return "", fmt.Errorf("mood_score %d out of range 1-10", mood)
	}
	emotion := args.String("emotion")

	if b.Persistent() {
		st, err := c.signedInStore()
		if err != nil {
			return "", err
		}
		entry := &domain.MoodEntry{
			UserID:    c.s.UserID,
			MoodScore: mood,
			Emotion:   emotion,
			Summary:   args.String("summary"),
			CreatedAt: time.Now(),
		}
		if err := st.AddMoodEntry(ctx, entry); err != nil {
			return "", fmt.Errorf("add mood entry: %w", err)
		}
	}

	delta, err := b.RecordMood(ctx, mood)
	if err != nil {
		return "", err
	}
	msg := fmt.Sprintf("Thanks for sharing. I've logged your mood as %d/10", mood)
	if emotion != "" {
		msg += fmt.Sprintf(" (%s)", emotion)
	}
	msg += "."
	if delta.MentalHealth > 0 {
		msg += fmt.Sprintf(" Your mental health score went up by %d.", delta.MentalHealth)
	}
	return msg, nil
}

func (c *catalog) funTask(ctx context.Context, args Args) (string, error) {
	taskType := strings.ToLower(strings.ReplaceAll(args.String("task_type"), " ", "_"))
	if taskType == "" {
		return "", fmt.Errorf("%w: task_type", errEmptyArgument)
	}
	spec, known := funTasks[taskType]
	if !known {
		spec = funTaskSpec{name: scores.ActivityLabel(taskType)}
	}
	details := args.String("details")

	if st, err := c.signedInStore(); err == nil {
		task := &domain.PendingTask{
			UserID:      c.s.UserID,
			TaskType:    taskType,
			TaskName:    spec.name,
			Description: details,
			CreatedAt:   time.Now(),
		}
		if err := st.AddFunTask(ctx, task); err != nil {
			return "", fmt.Errorf("add fun task: %w", err)
		}
	}

	msg := fmt.Sprintf("🎯 Fun task assigned: %s!", spec.name)
	if details != "" {
		msg += " " + details
	}
	if spec.automation == "" {
		return msg, nil
	}
	result, err := c.runAutomation(ctx, spec.automation, nil, browser.Options{Screenshots: true})
	if err != nil {
		c.deps.Logger.Warn("fun task automation failed", "task_type", taskType, "error", err)
		return msg, nil
	}
	return msg + "\n\n" + result, nil
}

func (c *catalog) searchTherapists(ctx context.Context, args Args) (string, error) {
	if c.deps.Store == nil {
		return "", errNoStore
	}
	limit := args.Int("max_results", defaultMaxResults)
	if limit <= 0 {
		limit = defaultMaxResults
	}
	if limit > maxTherapistResults {
		limit = maxTherapistResults
	}
	specialty := strings.ToLower(args.String("specialty"))
	list, err := c.deps.Store.SearchTherapists(ctx, specialty, limit)
	if err != nil {
		return "", fmt.Errorf("search therapists: %w", err)
	}
	return formatTherapists(specialty, list), nil
}
