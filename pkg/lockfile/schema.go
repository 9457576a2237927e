package lockfile

// Structural schema applied before decoding. Deliberately loose about entry
// payloads (npm has grown fields across lockfile versions) but strict about
// the container shapes a parser relies on.
const lockSchema = `{
  "type": "object",
  "properties": {
    "name": { "type": "string" },
    "version": { "type": "string" },
    "lockfileVersion": { "type": "integer", "minimum": 1 },
    "packages": {
      "type": "object",
      "additionalProperties": { "type": "object" }
    },
    "dependencies": {
      "type": "object",
      "additionalProperties": { "type": "object" }
    }
  }
}`
