package tools

// Raw JSON input schemas, one per catalog tool. Compiled once at
// registration.

const searchSchema = `{
  "type": "object",
  "properties": {
    "query": {"type": "string", "minLength": 1},
    "scope": {
      "type": "array",
      "items": {"type": "string", "enum": ["code", "symbols", "decisions", "patterns", "failures"]}
    },
    "filters": {
      "type": "object",
      "properties": {
        "kinds": {"type": "array", "items": {"type": "string"}},
        "exported_only": {"type": "boolean"},
        "pattern_type": {"type": "string"},
        "file_path": {"type": "string"},
        "repository": {"type": "string"}
      },
      "additionalProperties": true
    },
    "limit": {"type": "number", "minimum": 1},
    "output": {"type": "string", "enum": ["full", "paths", "compact", "snippet"]},
    "context_lines": {"type": "number", "minimum": 0, "maximum": 10}
  },
  "required": ["query"]
}`

const indexRepositorySchema = `{
  "type": "object",
  "properties": {
    "repository": {"type": "string", "minLength": 1},
    "ref": {"type": "string"},
    "localPath": {"type": "string"}
  },
  "required": ["repository"]
}`

const listRecentFilesSchema = `{
  "type": "object",
  "properties": {
    "limit": {"type": "number", "minimum": 1, "maximum": 100},
    "repository": {"type": "string"}
  }
}`

const searchDependenciesSchema = `{
  "type": "object",
  "properties": {
    "file_path": {"type": "string", "minLength": 1},
    "direction": {"type": "string", "enum": ["dependents", "dependencies", "both"]},
    "depth": {"type": "number", "minimum": 1, "maximum": 5},
    "include_tests": {"type": "boolean"},
    "reference_types": {
      "type": "array",
      "items": {"type": "string", "enum": ["import", "re_export", "export_all", "dynamic_import"]}
    },
    "repository": {"type": "string"}
  },
  "required": ["file_path"]
}`

const analyzeChangeImpactSchema = `{
  "type": "object",
  "properties": {
    "file_path": {"type": "string", "minLength": 1},
    "repository": {"type": "string"}
  },
  "required": ["file_path"]
}`

const validateImplementationSpecSchema = `{
  "type": "object",
  "properties": {
    "spec_path": {"type": "string"},
    "content": {"type": "string"}
  }
}`

const generateTaskContextSchema = `{
  "type": "object",
  "properties": {
    "task": {"type": "string", "minLength": 1},
    "domain": {"type": "string"},
    "file_path": {"type": "string"},
    "limit": {"type": "number", "minimum": 1, "maximum": 20}
  },
  "required": ["task"]
}`

const recordDecisionSchema = `{
  "type": "object",
  "properties": {
    "title": {"type": "string", "minLength": 1},
    "context": {"type": "string", "minLength": 1},
    "decision": {"type": "string", "minLength": 1},
    "scope": {"type": "string", "enum": ["architecture", "pattern", "convention", "workaround"]},
    "rationale": {"type": "string"},
    "alternatives": {"type": "array", "items": {"type": "string"}},
    "related_files": {"type": "array", "items": {"type": "string"}}
  },
  "required": ["title", "context", "decision", "scope"]
}`

const recordFailureSchema = `{
  "type": "object",
  "properties": {
    "title": {"type": "string", "minLength": 1},
    "problem": {"type": "string", "minLength": 1},
    "approach": {"type": "string", "minLength": 1},
    "failure_reason": {"type": "string", "minLength": 1},
    "related_files": {"type": "array", "items": {"type": "string"}}
  },
  "required": ["title", "problem", "approach", "failure_reason"]
}`

const recordInsightSchema = `{
  "type": "object",
  "properties": {
    "content": {"type": "string", "minLength": 1},
    "insight_type": {"type": "string", "enum": ["discovery", "failure", "workaround"]},
    "session_id": {"type": "string"},
    "related_file": {"type": "string"}
  },
  "required": ["content", "insight_type"]
}`

const getDomainKeyFilesSchema = `{
  "type": "object",
  "properties": {
    "domain": {"type": "string", "minLength": 1},
    "limit": {"type": "number", "minimum": 1, "maximum": 50}
  },
  "required": ["domain"]
}`

const validateExpertiseSchema = `{
  "type": "object",
  "properties": {
    "domain": {"type": "string", "minLength": 1}
  },
  "required": ["domain"]
}`

const syncExpertiseSchema = `{
  "type": "object",
  "properties": {
    "domain": {"type": "string", "minLength": 1},
    "patterns": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "description": {"type": "string", "minLength": 1},
          "file_path": {"type": "string"},
          "example": {"type": "string"}
        },
        "required": ["name", "description"]
      }
    }
  },
  "required": ["domain", "patterns"]
}`

const getRecentPatternsSchema = `{
  "type": "object",
  "properties": {
    "pattern_type": {"type": "string"},
    "file_path": {"type": "string"},
    "limit": {"type": "number", "minimum": 1, "maximum": 50}
  }
}`

const syncExportSchema = `{
  "type": "object",
  "properties": {
    "force": {"type": "boolean"},
    "export_dir": {"type": "string"}
  }
}`

const syncImportSchema = `{
  "type": "object",
  "properties": {
    "import_dir": {"type": "string"}
  }
}`
