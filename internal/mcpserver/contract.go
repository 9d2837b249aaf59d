package mcpserver

// ScoringContract describes how records are filtered, scored and selected.
// It is served as the gallery://scoring resource.
const ScoringContract = `# Attractor Gallery Scoring Contract

Every curation run applies the same three stages to the record store.

## 1. Metadata validity

A record is considered only when:

- its Lyapunov spectrum is non-empty and every exponent is finite,
- its Kaplan-Yorke dimension (ky_dim) is finite,
- its leading exponent (spectrum[0]) is strictly below the configured ceiling (default 100).

NaN and +/-Inf both count as non-finite. A JSON null in a stored record decodes to NaN.

## 2. Scoring policies

Scores are pure functions of (spectrum, ky_dim); only spectrum[0] (written L1 below) is used.

- **linear**: ky_dim * 2 + min(L1, 10)
- **bell** (alias bell-curve): -1 when L1 < 0.01, otherwise
  ky_dim * 3 + 2 * exp(-((ln L1 - ln 0.3)^2) / 2)

Under **bell**, a score of exactly -1 marks a non-chaotic record; such records are never selected.
The bell bonus peaks at L1 = 0.3 and adds at most 2.

## 3. Selection

- Records are partitioned by their exact method tag. Configured tags form named groups;
  every other record falls into the catch-all group.
- Each group is sorted by descending score with a stable sort, so equal scores keep
  store enumeration order.
- The first N per group (top_n) are loaded in full and their trajectories re-checked:
  every coordinate must be finite with magnitude at most the coordinate ceiling (default 1e6).
- Records that fail the trajectory check are dropped. Records that vanished from the store
  are skipped with a warning. Neither is replaced by a lower-ranked record.

## Identifiers

Record ids are unsigned 64-bit integers written as 16 lowercase hex digits
(e.g. 00000000deadbeef). Tools accept an optional 0x prefix.
`
