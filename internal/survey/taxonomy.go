package survey

import (
	"fmt"
	"strings"
)

// TopicGroup is a main topic with its sub-topics.
type TopicGroup struct {
	Name      string
	SubTopics []string
}

// Taxonomy is the two-level topic hierarchy offered to the analyzer.
// Classifications are not rejected for using labels outside of it.
var Taxonomy = []TopicGroup{
	{Name: "Product", SubTopics: []string{"Quality", "Features", "Usability", "Reliability"}},
	{Name: "Pricing", SubTopics: []string{"Value for Money", "Discounts", "Billing"}},
	{Name: "Customer Service", SubTopics: []string{"Responsiveness", "Staff Attitude", "Resolution"}},
	{Name: "Delivery", SubTopics: []string{"Speed", "Packaging", "Tracking"}},
	{Name: "Website & App", SubTopics: []string{"Performance", "Navigation", "Checkout", "Account"}},
	{Name: "Communication", SubTopics: []string{"Clarity", "Frequency", "Marketing"}},
	{Name: "Other", SubTopics: []string{"General"}},
}

// KnownTopic reports whether the path is part of the taxonomy.
func KnownTopic(path []string) bool {
	if len(path) == 0 {
		return false
	}
	for _, g := range Taxonomy {
		if !strings.EqualFold(g.Name, path[0]) {
			continue
		}
		if len(path) == 1 {
			return true
		}
		for _, sub := range g.SubTopics {
			if strings.EqualFold(sub, path[1]) {
				return true
			}
		}
	}
	return false
}

// DescribeTaxonomy renders the hierarchy as an indented list for prompts.
func DescribeTaxonomy() string {
	var b strings.Builder
	for _, g := range Taxonomy {
		fmt.Fprintf(&b, "- %s: %s\n", g.Name, strings.Join(g.SubTopics, ", "))
	}
	return strings.TrimRight(b.String(), "\n")
}
