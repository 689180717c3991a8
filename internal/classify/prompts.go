package classify

import (
	"fmt"

	"github.com/superschedules/navigator/internal/model"
)

// maxPromptText caps how much page text goes into a prompt.
const maxPromptText = 4000

const systemPrompt = `You are a classifier that judges web pages for a municipal point-of-interest directory.
Respond with ONLY a JSON object, no prose and no markdown fences:
{"verdict": "accepted" | "rejected" | "uncertain", "confidence": 0.0-1.0, "reason": "<short explanation>"}
Use "accepted" when the page is what the task asks for, "rejected" when it clearly is not, and "uncertain" when you cannot tell.`

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// websitePrompt builds the category-specific official-website question.
// Parks, playgrounds, and town halls accept a municipal government site;
// everything else requires the venue's own site.
func websitePrompt(poi *model.POI, region, url, text string) string {
	text = truncate(text, maxPromptText)

	switch {
	case poi.Category == model.CategoryTownHall:
		return fmt.Sprintf(`TASK: Is this the official government website for %s, %s?

URL: %s

WEBPAGE TEXT:
%s

ACCEPT if this is:
- The official .gov website for %s
- A city/town government website

REJECT if this is:
- Wikipedia or an encyclopedia
- A directory or listing site
- A news site or third-party site`,
			poi.City, region, url, text, poi.City)

	case poi.Category.GovernmentTolerant():
		return fmt.Sprintf(`TASK: Is this the official website for %s, %s or its Parks department?

URL: %s

WEBPAGE TEXT:
%s

ACCEPT if this is:
- The official .gov website for %s
- A Parks & Recreation department website
- A town/city government site that includes parks info

REJECT if this is:
- Wikipedia, a dictionary, or encyclopedia
- A news article or directory listing
- A third-party site not run by the government`,
			poi.City, region, url, text, poi.City)

	default:
		return fmt.Sprintf(`TASK: Is this a usable official website for %q (%s) in %s, %s?

NOTE: The page should be run BY or be about %q specifically.

URL: %s

WEBPAGE TEXT:
%s

ACCEPT only if this is:
- The official website run BY this place or organization
- A city/town government page (.gov) for this type of place
- The parent organization's official site (school district, library network, etc.)

REJECT if this is:
- Wikipedia or any encyclopedia
- A dictionary defining words
- A news article, blog post, or press release
- A review/listing site (Yelp, TripAdvisor, Google Maps, etc.)
- A school/business directory (GreatSchools, Niche, NCES, etc.)
- A social media page (Facebook, Twitter, Reddit, etc.)
- An event aggregator (Eventbrite, Meetup, etc.)
- A third-party site that lists info ABOUT many places, not run BY this place

IMPORTANT: If the page has navigation to browse OTHER schools/places, it is a directory: reject it.

The key question: Is this site run BY the organization/government, or just ABOUT it?`,
			poi.Name, poi.Category, poi.City, region, poi.Name, url, text)
	}
}

// eventsPrompt builds the is-this-an-official-events-page question.
func eventsPrompt(poi *model.POI, url, text string) string {
	return fmt.Sprintf(`TASK: Is this an official events/calendar page for %q in %s?

URL: %s

WEBPAGE TEXT:
%s

ACCEPT if:
- This is the official events page run BY this organization or its parent department
- A .gov website calendar (Parks & Rec, library, town events, etc.)
- The organization's own website
- Events listed are specifically for this place or its parent organization

REJECT if:
- This is an EVENT AGGREGATOR that lists events from many different places
  (patch.com, eventbrite.com, meetup.com, facebook.com, timeout.com, and the like)
- This is a NEWS site with event listings, not run by the organization
- Events are for a DIFFERENT location or organization
- This is a general community calendar not specifically for this place

IMPORTANT: The key question is whether this organization RUNS this events page, or whether it is a third-party site.`,
		poi.Name, poi.City, url, truncate(text, maxPromptText))
}

// eventsVisionPrompt asks the vision model to confirm rendered event listings.
// Text analysis can be fooled by pages that mention events without listing
// any; the screenshot shows what a visitor actually sees.
func eventsVisionPrompt(poi *model.POI, url string) string {
	return fmt.Sprintf(`Look at this webpage screenshot.

TASK: Does this page show actual event listings for %q in %s?

URL: %s

ACCEPT if you can see concrete upcoming events with dates, times, or a populated calendar.
REJECT if the page is empty, shows "no upcoming events", is an error page, or lists events for unrelated places.
Use "uncertain" if the screenshot is unreadable or ambiguous.`,
		poi.Name, poi.City, url)
}
