// Package browser drives a headless browser through short, fixed navigation
// plans chosen from a free-text task.
package browser

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/ashureev/mindcure-agent/internal/shared"
)

// Step is one navigation of a plan. An empty URL keeps the current page.
type Step struct {
	Status string
	URL    string
}

// Plan is the fixed sequence of steps for a task.
type Plan struct {
	Kind   string
	Steps  []Step
	Result string
}

// Plan kinds.
const (
	KindTherapists = "therapists"
	KindInstagram  = "instagram"
	KindSpotify    = "spotify"
	KindParks      = "parks"
	KindMemes      = "memes"
	KindSearch     = "search"
	KindCrisis     = "crisis"
)

const psychologyTodayURL = "https://www.psychologytoday.com/us/therapists"

type route struct {
	kind     string
	keywords []string
	build    func(task string) Plan
}

// routes are matched in order; the first keyword hit wins.
var routes = []route{
	{KindTherapists, []string{"therapist", "psychology"}, therapistPlan},
	{KindInstagram, []string{"instagram", "block"}, func(string) Plan {
		return Plan{
			Steps:  []Step{{Status: "Opening Instagram...", URL: "https://www.instagram.com"}, {Status: "Waiting for page..."}},
			Result: "✅ Opened Instagram. You can log in to manage your account settings and blocking.",
		}
	}},
	{KindSpotify, []string{"spotify", "music", "playlist"}, func(string) Plan {
		return Plan{
			Steps:  []Step{{Status: "Opening Spotify...", URL: "https://open.spotify.com"}, {Status: "Waiting for page..."}},
			Result: "✅ Opened Spotify. You can browse playlists to find music that matches your mood.",
		}
	}},
	{KindParks, []string{"maps", "park", "grass"}, func(string) Plan {
		return Plan{
			Steps:  []Step{{Status: "Finding nearby parks...", URL: "https://www.google.com/maps/search/parks+near+me"}, {Status: "Waiting for map..."}},
			Result: "✅ Opened Google Maps showing parks near you. Time to touch some grass! 🌳",
		}
	}},
	{KindMemes, []string{"meme", "reddit"}, func(string) Plan {
		return Plan{
			Steps:  []Step{{Status: "Opening wholesome memes...", URL: "https://www.reddit.com/r/wholesomememes/"}, {Status: "Waiting for page..."}},
			Result: "✅ Opened wholesome memes on Reddit. Enjoy your dose of positivity! 😊",
		}
	}},
}

// PlanFor maps a task to a navigation plan by keyword. Tasks matching no
// keyword become a web search of the task text.
func PlanFor(task string) Plan {
	lower := strings.ToLower(task)
	for _, r := range routes {
		for _, kw := range r.keywords {
			if strings.Contains(lower, kw) {
				p := r.build(task)
				p.Kind = r.kind
				return p
			}
		}
	}
	return Plan{
		Kind: KindSearch,
		Steps: []Step{
			{Status: "Searching for: " + task, URL: "https://www.google.com/search?q=" + url.QueryEscape(task)},
			{Status: "Waiting for results..."},
		},
		Result: "✅ Searched Google for: " + task,
	}
}

func therapistPlan(task string) Plan {
	steps := []Step{{Status: "Opening Psychology Today...", URL: psychologyTodayURL}}
	location := ExtractLocation(task)
	result := "✅ Opened Psychology Today therapist directory. "
	if location != "" {
		steps = append(steps, Step{
			Status: fmt.Sprintf("Searching for therapists in %s...", location),
			URL:    psychologyTodayURL + "?search=" + url.QueryEscape(location),
		})
		result += fmt.Sprintf("Searched for therapists in %s.", location)
	} else {
		steps = append(steps, Step{Status: "Waiting for directory..."})
		result += "You can search by location."
	}
	steps = append(steps, Step{Status: "Showing results..."})
	return Plan{Steps: steps, Result: result}
}

// CrisisPlan opens the 988 Lifeline followed by a therapist directory for location.
func CrisisPlan(location string) Plan {
	target := psychologyTodayURL
	if location = strings.TrimSpace(location); location != "" {
		target += "?search=" + url.QueryEscape(location)
	}
	where := location
	if where == "" {
		where = "your area"
	}
	return Plan{
		Kind: KindCrisis,
		Steps: []Step{
			{Status: "Opening 988 Suicide & Crisis Lifeline...", URL: "https://988lifeline.org/"},
			{Status: "Opening therapist directory...", URL: target},
		},
		Result: fmt.Sprintf("Opened crisis resources: 988 Lifeline and Psychology Today therapist directory for %s", where),
	}
}

var knownCities = []string{
	"san francisco", "new york", "los angeles", "chicago", "boston",
	"seattle", "miami", "atlanta", "denver", "austin", "portland",
}

var clauseStops = map[string]bool{"for": true, "who": true, "that": true, "with": true}

// ExtractLocation returns a known city named in task, else the text after
// the last " in ", cut at the first for/who/that/with. It returns "" when
// neither yields a plausible place.
func ExtractLocation(task string) string {
	lower := strings.ToLower(task)
	for _, city := range knownCities {
		if strings.Contains(lower, city) {
			return shared.TitleCase(city)
		}
	}

	idx := strings.LastIndex(lower, " in ")
	if idx < 0 {
		return ""
	}
	var kept []string
	for _, w := range strings.Fields(lower[idx+len(" in "):]) {
		if clauseStops[w] {
			break
		}
		kept = append(kept, w)
	}
	location := strings.Trim(strings.Join(kept, " "), " .,!?")
	if len(location) <= 2 || len(location) >= 50 {
		return ""
	}
	return shared.TitleCase(location)
}

