package anthropic

import "fmt"

const systemPrompt = `You are an experienced hiring manager and interview coach. You review transcripts of practice interviews and give candid, specific, actionable feedback. You answer with JSON only.`

// buildEvaluationPrompt creates the user message for a transcript evaluation
func buildEvaluationPrompt(transcript, role string) string {
	prompt := `Evaluate the candidate in the practice interview transcript below.

Score these competencies from 1 (poor) to 5 (excellent):
1. **Communication** - clarity, structure, concision
2. **Answer structure** - use of STAR or a comparable framework for behavioral answers
3. **Technical depth** - accuracy and depth where the question called for it
4. **Problem solving** - reasoning out loud, handling ambiguity, trade-offs
5. **Role fit** - relevance of examples to the position

For each competency give one or two sentences of feedback that quote or paraphrase the transcript.
Then give an overall score from 0 to 100, a short summary, up to three strengths and up to three concrete improvements.

**Guidelines:**
- Judge only what the transcript shows
- Prefer specific advice ("quantify the outcome of the migration project") over generic advice
- Do not penalize transcription artifacts such as filler words or cut-off sentences`

	if role != "" {
		prompt += fmt.Sprintf("\n\n**Target role:** %s", role)
	}

	prompt += `

**Response Format:**
Return a JSON object with this exact structure:

{
  "overall_score": 0,
  "summary": "Two or three sentences",
  "strengths": ["..."],
  "improvements": ["..."],
  "competencies": [
    {"name": "Communication", "score": 1, "feedback": "..."}
  ]
}

**Transcript:**
`
	return prompt + transcript
}
