package storage

// Row types mirror the table schemas. Timestamps are ISO-8601 UTC strings.

// Repository is one indexed source tree.
type Repository struct {
	ID            string `json:"id"`
	FullName      string `json:"full_name"`
	GitURL        string `json:"git_url"`
	CreatedAt     string `json:"created_at"`
	LastIndexedAt string `json:"last_indexed_at,omitempty"`
}

// File is one indexed file within a repository. Content is stored
// lz4-compressed on disk and transparently decompressed on read.
type File struct {
	ID           string `json:"id"`
	RepositoryID string `json:"repository_id"`
	Path         string `json:"path"`
	Language     string `json:"language"`
	ContentHash  string `json:"content_hash"`
	Size         int64  `json:"size"`
	IndexedAt    string `json:"indexed_at"`
	Content      string `json:"content,omitempty"`
}

// Symbol is one extracted declaration.
type Symbol struct {
	ID            string `json:"id"`
	FileID        string `json:"file_id"`
	Name          string `json:"name"`
	Kind          string `json:"kind"`
	Signature     string `json:"signature,omitempty"`
	Documentation string `json:"documentation,omitempty"`
	LineStart     int    `json:"line_start"`
	LineEnd       int    `json:"line_end"`
	Metadata      string `json:"metadata"`
}

// Reference is one directed import edge from a source file. TargetFilePath
// is empty while unresolved; unresolved rows are kept for diagnostics.
type Reference struct {
	ID               string `json:"id"`
	FileID           string `json:"file_id"`
	TargetFilePath   string `json:"target_file_path,omitempty"`
	TargetSymbolName string `json:"target_symbol_name,omitempty"`
	ReferenceType    string `json:"reference_type"`
	Metadata         string `json:"metadata"`
}

// Decision is a recorded architectural or convention decision.
type Decision struct {
	ID           string   `json:"id"`
	RepositoryID string   `json:"repository_id,omitempty"`
	Title        string   `json:"title"`
	Context      string   `json:"context"`
	Decision     string   `json:"decision"`
	Scope        string   `json:"scope"`
	Rationale    string   `json:"rationale,omitempty"`
	Alternatives []string `json:"alternatives"`
	RelatedFiles []string `json:"related_files"`
	CreatedAt    string   `json:"created_at"`
	UpdatedAt    string   `json:"updated_at"`
}

// Failure is a recorded failed approach.
type Failure struct {
	ID            string   `json:"id"`
	RepositoryID  string   `json:"repository_id,omitempty"`
	Title         string   `json:"title"`
	Problem       string   `json:"problem"`
	Approach      string   `json:"approach"`
	FailureReason string   `json:"failure_reason"`
	RelatedFiles  []string `json:"related_files"`
	CreatedAt     string   `json:"created_at"`
}

// Pattern is a recorded code pattern, unique by PatternType ("domain:name").
type Pattern struct {
	ID           string `json:"id"`
	RepositoryID string `json:"repository_id,omitempty"`
	PatternType  string `json:"pattern_type"`
	FilePath     string `json:"file_path,omitempty"`
	Description  string `json:"description"`
	Example      string `json:"example,omitempty"`
	CreatedAt    string `json:"created_at"`
}

// Insight is a lightweight session note.
type Insight struct {
	ID          string `json:"id"`
	SessionID   string `json:"session_id,omitempty"`
	Content     string `json:"content"`
	InsightType string `json:"insight_type"`
	RelatedFile string `json:"related_file,omitempty"`
	CreatedAt   string `json:"created_at"`
}

// WorkflowContext is one curated per-phase summary for a workflow.
type WorkflowContext struct {
	ID          string `json:"id"`
	WorkflowID  string `json:"workflow_id"`
	Phase       string `json:"phase"`
	ContextData string `json:"context_data"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}
