package resolve

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/superschedules/navigator/internal/model"
)

// officialSiteIndicators are domain patterns that suggest an institutional
// site rather than an aggregator.
var officialSiteIndicators = []*regexp.Regexp{
	regexp.MustCompile(`\.gov$`),
	regexp.MustCompile(`\.edu$`),
	regexp.MustCompile(`\.org$`),
	regexp.MustCompile(`library\.`),
	regexp.MustCompile(`parks\.`),
	regexp.MustCompile(`recreation\.`),
	regexp.MustCompile(`\.us$`),
}

// categorySearchTemplates build the website search query per category.
// %[1]s is the POI name, %[2]s the city, %[3]s the region.
var categorySearchTemplates = map[model.Category]string{
	model.CategoryPark:            "%[1]s %[2]s %[3]s parks recreation",
	model.CategoryPlayground:      "%[1]s %[2]s %[3]s parks recreation",
	model.CategoryLibrary:         "%[1]s library %[2]s %[3]s",
	model.CategoryMuseum:          "%[1]s museum %[2]s %[3]s",
	model.CategoryCommunityCentre: "%[1]s %[2]s %[3]s community center",
	model.CategoryTheatre:         "%[1]s theatre theater %[2]s %[3]s",
	model.CategoryArtsCentre:      "%[1]s arts center %[2]s %[3]s",
	model.CategorySchool:          "%[1]s school %[2]s %[3]s",
	model.CategoryUniversity:      "%[1]s university %[2]s %[3]s",
	model.CategorySportsCentre:    "%[1]s %[2]s %[3]s recreation",
	model.CategoryTownHall:        "%[2]s %[3]s town hall official",
}

// searchQuery builds the category-specific website search query.
func searchQuery(poi *model.POI, region string) string {
	template, ok := categorySearchTemplates[poi.Category]
	if !ok {
		template = "%[1]s %[2]s %[3]s official website"
	}
	query := fmt.Sprintf(template, poi.Name, poi.City, region)
	if poi.StreetAddress != "" {
		query += " " + poi.StreetAddress
	}
	return query
}

// excludedSearchDomains are appended to website queries as -site: operators
// so the worst aggregators never enter the candidate pool at all.
var excludedSearchDomains = []string{
	"tripadvisor.com", "yelp.com", "facebook.com", "instagram.com",
	"mapquest.com", "yellowpages.com",
}

func withSiteExclusions(query string) string {
	var b strings.Builder
	b.WriteString(query)
	for _, d := range excludedSearchDomains {
		b.WriteString(" -site:")
		b.WriteString(d)
	}
	return b.String()
}

// eventsSearchQuery builds the query for the events web-search fallback.
func eventsSearchQuery(poi *model.POI, region string) string {
	return fmt.Sprintf("%s events %s %s", poi.Name, poi.City, region)
}

var nameSuffixRe = regexp.MustCompile(`(?i)\s+(park|library|museum|center|centre|school)$`)

// scoreResult estimates how likely a search result is the POI's official
// website, 0.0 to 1.0.
func scoreResult(url, title, poiName, poiCity string) float64 {
	score := 0.5
	domain := model.HostOf(url)
	titleLower := strings.ToLower(title)
	nameLower := strings.ToLower(poiName)
	cityLower := strings.ToLower(poiCity)

	for _, re := range officialSiteIndicators {
		if re.MatchString(domain) {
			score += 0.15
			break
		}
	}

	// City in the domain, like needhamma.gov.
	citySlug := strings.ReplaceAll(cityLower, " ", "")
	if citySlug != "" && strings.Contains(domain, citySlug) {
		score += 0.2
	}

	cleanName := strings.TrimSpace(nameSuffixRe.ReplaceAllString(nameLower, ""))
	if (cleanName != "" && strings.Contains(titleLower, cleanName)) || strings.Contains(titleLower, nameLower) {
		score += 0.25
	}

	if cityLower != "" && strings.Contains(titleLower, cityLower) {
		score += 0.1
	}

	for _, x := range []string{"trip", "travel", "review", "directory", "listing"} {
		if strings.Contains(domain, x) {
			score -= 0.3
			break
		}
	}
	if strings.Contains(domain, "chamber") {
		score -= 0.4
	}

	urlLower := strings.ToLower(url)
	for _, x := range []string{"/members/", "/business/", "/directory/", "/listing/", "/biz/"} {
		if strings.Contains(urlLower, x) {
			score -= 0.3
			break
		}
	}

	if score > 1.0 {
		return 1.0
	}
	if score < 0.0 {
		return 0.0
	}
	return score
}
