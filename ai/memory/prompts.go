package memory

import "fmt"

const extractionPromptTemplate = `You are a Memory Extraction AI. Your job is to identify long-term facts from a conversation.

Extract:
1. Preferences (e.g., "I like blue")
2. Facts (e.g., "My sister is Sarah")
3. Constraints (e.g., "Don't call me after 5 PM")
4. Commitments (e.g., "I promised to send the report")

Return ONLY a valid JSON list of objects. If no new information is found, return [].

Format:
[
  {
    "type": "preference | fact | constraint | commitment",
    "key": "short_identifier",
    "value": "the_actual_info",
    "confidence": 0.0 to 1.0
  }
]

Conversation:
%s`

const queryExpansionPromptTemplate = `Generate %d short search terms related to the user query below, to improve semantic search recall over stored personal facts.
Return ONLY the terms, one per line, no numbering, no commentary.

Query: %s`

const composerSystemPromptTemplate = `You are a helpful AI assistant with long-term memory.
Use the following retrieved memories to personalize your response.
If two memories conflict, trust the one with the most recent timestamp.
If the memories are not relevant to the current question, ignore them.

Relevant information from previous turns:
%s`

func extractionPrompt(text string) string {
	return fmt.Sprintf(extractionPromptTemplate, text)
}

func queryExpansionPrompt(query string, terms int) string {
	return fmt.Sprintf(queryExpansionPromptTemplate, terms, query)
}

func composerSystemPrompt(contextBlock string) string {
	return fmt.Sprintf(composerSystemPromptTemplate, contextBlock)
}
