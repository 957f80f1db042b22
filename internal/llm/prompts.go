package llm

const verifyDuplicatePrompt = `Compare these two statements about a user.

Existing memory: %s
New statement: %s

Classify the new statement relative to the existing memory:
- DUPLICATE: same information, nothing new
- SUPERSEDES: updates or replaces the existing memory with newer information
- DIFFERENT: unrelated or adds distinct information

Answer with exactly one word: DUPLICATE, SUPERSEDES or DIFFERENT.`

const extractEntitiesPrompt = `Extract the entities and relationships from this text.

Text: %s

Entity types: PERSON, ORGANIZATION, LOCATION, PRODUCT, CONCEPT, OTHER.
For each entity give a short description of what the text says about it and,
for people, their role if stated.

Relationships connect two extracted entities by name with an UPPER_SNAKE_CASE
type (e.g. WORKS_AT, LIVES_IN, USES) and a one-sentence description.

Respond ONLY with JSON, no markdown fences:
{
  "entities": [{"name": "...", "type": "PERSON", "description": "...", "role": "", "confidence": 0.9}],
  "relations": [{"source": "...", "target": "...", "type": "WORKS_AT", "description": "..."}]
}

If nothing can be extracted, respond with {"entities": [], "relations": []}.`

const classifyRelationPrompt = `An existing relationship of type %s is described as:
%s

A new observation describes the same relationship as:
%s

Classify the new observation:
- SAME: restates the existing description
- UPDATE: refines or extends it without conflict
- CONTRADICTION: conflicts with it (the old description is no longer true)

Answer with exactly one word: SAME, UPDATE or CONTRADICTION.`

const confirmEntityMergePrompt = `Do these two names refer to the same person?
Name A: %s
Name B: %s

Answer only "true" or "false". No explanation.`

const summarizeEntityPrompt = `Write a short profile of %s (%s) from what is known about them.

Memories mentioning them:
%s

Their relationships:
%s

Respond with ONLY the profile text, two or three sentences. No formatting.`

const summarizeClusterPrompt = `These memory snippets form one thematic cluster:

%s

Give the cluster a short name (a few words) and a one-paragraph summary.

Respond ONLY with JSON, no markdown fences:
{"name": "...", "summary": "..."}`

const extractSearchTermsPrompt = `Extract the key entities and concepts from this search query, one term per item.

Query: %s

Respond ONLY with a JSON array of strings, no markdown. Example: ["Alice", "Acme Corp"]
If the query has no extractable terms, respond with [].`

const categorizePrompt = `Assign one to three short category labels to this memory (e.g. "work", "health", "preferences", "relationships", "travel").

Memory: %s

Respond ONLY with a JSON array of lowercase strings, no markdown. Example: ["work", "travel"]`
