package llm

import "fmt"

// Prompts are centralized here so behaviour tweaks never hide inside request
// plumbing.

const polishSystemPrompt = `You are a meticulous editor. The user provides a raw speech-to-text transcript.
Clean it up into fluent written prose: fix recognition mistakes, add punctuation
and paragraph breaks, and remove filler words. Preserve the speaker's meaning
and every substantive detail. Output only the polished text.`

const polishDocumentSystemPrompt = `You are a meticulous editor. The user provides Markdown extracted from a
document by OCR. Repair broken formatting, merge fragmented lines, and fix
obvious recognition mistakes while preserving the document structure, headings,
lists, and tables. Output only the corrected Markdown.`

const fusionSystemPrompt = `You merge two views of the same talk: the presentation document and the spoken
transcript. Produce a single coherent Markdown note that follows the document's
structure while weaving in the speaker's explanations, examples, and asides
from the transcript. Do not drop content that appears in only one source.
Output only the merged note.`

func fusionUserPrompt(document, transcript string) string {
	return fmt.Sprintf("## Presentation document\n\n%s\n\n## Spoken transcript\n\n%s", document, transcript)
}

func noteUserPrompt(templatePrompt, material string) string {
	return fmt.Sprintf("%s\n\n---\n\nMaterial:\n\n%s", templatePrompt, material)
}
