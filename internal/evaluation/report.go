package evaluation

import (
	"fmt"
	"strings"
)

// Report renders an evaluation as a human-readable block for CLI output
// and logs.
func Report(eval *Evaluation) string {
	rule := strings.Repeat("=", 70)

	var b strings.Builder
	b.WriteString(rule + "\n")
	b.WriteString("PIPELINE EVALUATION REPORT\n")
	b.WriteString(rule + "\n")

	fmt.Fprintf(&b, "\nQuestion: %s\n", eval.Question)
	fmt.Fprintf(&b, "Overall Quality: %s\n", strings.ToUpper(string(eval.OverallQuality)))
	fmt.Fprintf(&b, "Confidence: %s\n", eval.Confidence)

	b.WriteString("\n--- RETRIEVAL METRICS ---\n")
	fmt.Fprintf(&b, "Chunks Retrieved: %d\n", eval.Retrieval.NumChunks)
	fmt.Fprintf(&b, "Average Score: %.3f\n", eval.Retrieval.AvgScore)
	fmt.Fprintf(&b, "High Quality Chunks: %d\n", eval.Retrieval.HighQualityChunks)
	fmt.Fprintf(&b, "Medium Quality Chunks: %d\n", eval.Retrieval.MediumQualityChunks)
	fmt.Fprintf(&b, "Low Quality Chunks: %d\n", eval.Retrieval.LowQualityChunks)

	b.WriteString("\n--- ANSWER METRICS ---\n")
	fmt.Fprintf(&b, "Answer Length: %d chars (%d words)\n", eval.Answer.Length, eval.Answer.WordCount)
	fmt.Fprintf(&b, "Confidence Level: %s\n", eval.Answer.ConfidenceLevel)
	fmt.Fprintf(&b, "Context Usage: %.1f%%\n", eval.Answer.ContextOverlap*100)
	fmt.Fprintf(&b, "Generic Answer: %s\n", yesNo(eval.Answer.IsGeneric))

	if eval.Answer.HasExpected {
		fmt.Fprintf(&b, "Similarity to Expected: %.3f\n", eval.Answer.SimilarityToExpected)
		fmt.Fprintf(&b, "Matches Expected: %s\n", yesNo(eval.Answer.MatchesExpected))
	}

	b.WriteString("\n" + rule)
	return b.String()
}

func yesNo(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}
