package document

import "strings"

// Keyword tables behind DetectType. Matching is substring-based over the
// lowercased text, same as counting phrase occurrences at most once each.
var (
	legalKeywords = []string{
		"whereas", "hereby", "herein", "therein", "pursuant",
		"party of the first part", "party of the second part",
		"this agreement", "this contract", "terms and conditions",
		"now therefore", "in witness whereof",
		"article", "section", "clause", "exhibit", "schedule",
	}

	contractKeywords = []string{
		"employment agreement", "service agreement", "license agreement",
		"purchase agreement", "sales agreement", "lease agreement",
		"confidentiality agreement", "non-disclosure agreement", "nda",
		"terms of service", "privacy policy", "memorandum of understanding",
	}

	reportKeywords = []string{
		"executive summary", "introduction", "methodology",
		"findings", "conclusions", "recommendations",
		"abstract", "table of contents", "bibliography",
	}
)

// DetectType classifies a document as contract, legal, report, or general
// by counting genre keywords. Contract wins with 2 contract keywords or a
// heavy legal vocabulary (5+); 3+ legal keywords alone make it legal; 2+
// report keywords make it a report. Empty text is general.
func DetectType(text string) string {
	if text == "" {
		return "general"
	}

	lower := strings.ToLower(text)
	legalScore := countKeywords(lower, legalKeywords)
	contractScore := countKeywords(lower, contractKeywords)
	reportScore := countKeywords(lower, reportKeywords)

	switch {
	case contractScore >= 2 || legalScore >= 5:
		return "contract"
	case legalScore >= 3:
		return "legal"
	case reportScore >= 2:
		return "report"
	default:
		return "general"
	}
}

func countKeywords(textLower string, keywords []string) int {
	count := 0
	for _, keyword := range keywords {
		if strings.Contains(textLower, keyword) {
			count++
		}
	}
	return count
}
