package pipeline

// Default prompt templates. Deployments override these through the
// [recall] and [validation] sections of the TOML config; the defaults keep
// the engine usable out of the box.

const defaultChecklist = `1. Term: confidentiality obligations must not survive longer than twenty-four (24) months.
2. Non-solicitation: clauses must be limited to direct, knowing solicitation and expire within twelve (12) months.
3. Governing law: must not mandate an inconvenient exclusive forum.
4. Definition of Confidential Information: must exclude independently developed and publicly available information.
5. No implied license, no residuals clauses granting rights to recipient.
6. Return/destruction: recipient must be permitted to retain archival copies required by law.`

const defaultRecallPrompt = `You are reviewing a legal document against a policy checklist.

<CHECKLIST>
%s
</CHECKLIST>

<DOCUMENT>
%s
</DOCUMENT>

Spans already handled by deterministic rules (do not propose edits overlapping these):
%s

Identify every clause that violates the checklist. For each violation propose one edit.
Offsets are byte offsets into DOCUMENT exactly as given. original_text must be the exact
text between start and end.

Return a JSON object:
{
  "candidates": [
    {
      "start": 0,
      "end": 0,
      "original_text": "...",
      "replacement_text": "...",
      "category": "...",
      "severity": "critical|high|moderate|low",
      "confidence": 0,
      "rationale": "..."
    }
  ]
}

Omit replacement_text for pure deletions. confidence is an integer 0-100.
Return an empty candidates list if nothing violates the checklist.`

const defaultAdjudicatePrompt = `You previously proposed an edit to a legal document. Re-examine it independently.

<CONTEXT>
%s
</CONTEXT>

<PROPOSED EDIT>
original_text: %q
replacement_text: %q
category: %s
severity: %s
confidence: %d
rationale: %s
</PROPOSED EDIT>

Decide whether the edit is correct. Return a JSON object:
{
  "verdict": "confirm" | "reject" | "modify",
  "original_text": "...",
  "replacement_text": "...",
  "confidence": 0,
  "rationale": "..."
}

For "confirm", repeat the edit unchanged with your own confidence.
For "modify", supply the corrected original_text (which must appear verbatim in CONTEXT)
and replacement_text.
For "reject", explain why in rationale.`
