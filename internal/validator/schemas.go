package validator

// Embedded JSON schemas

const graphSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "graph.json",
  "title": "Workflow Graph",
  "type": "object",
  "required": ["nodes", "edges"],
  "properties": {
    "nodes": {
      "type": ["array", "null"],
      "items": {"$ref": "#/$defs/node"}
    },
    "edges": {
      "type": ["array", "null"],
      "items": {"$ref": "#/$defs/edge"}
    }
  },
  "$defs": {
    "node": {
      "type": "object",
      "required": ["id"],
      "properties": {
        "id": {"type": "string", "minLength": 1},
        "type": {"type": "string"},
        "parent_id": {"type": ["string", "null"]},
        "data": {"type": ["object", "null"]},
        "ui_properties": {"type": ["object", "null"]},
        "sync_mode": {"type": "string"}
      }
    },
    "edge": {
      "type": "object",
      "required": ["source", "target"],
      "properties": {
        "id": {"type": ["string", "null"]},
        "source": {"type": "string", "minLength": 1},
        "sourceHandle": {"type": ["string", "null"]},
        "target": {"type": "string", "minLength": 1},
        "targetHandle": {"type": ["string", "null"]},
        "ui_properties": {"type": ["object", "null"]}
      }
    }
  }
}`

const workflowSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "workflow.json",
  "title": "Workflow Document",
  "type": "object",
  "required": ["name", "graph"],
  "properties": {
    "id": {"type": "string"},
    "name": {"type": "string", "minLength": 1},
    "description": {"type": "string"},
    "tags": {"type": ["array", "null"], "items": {"type": "string"}},
    "graph": {"$ref": "graph.json"},
    "version": {"type": "integer", "minimum": 0},
    "thumbnail": {"type": "string"},
    "settings": {"type": ["object", "null"]}
  }
}`

const catalogSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "catalog.json",
  "title": "Node Metadata Catalog",
  "oneOf": [
    {"type": "array", "items": {"$ref": "#/$defs/nodeMetadata"}},
    {
      "type": "object",
      "required": ["nodes"],
      "properties": {
        "nodes": {"type": "array", "items": {"$ref": "#/$defs/nodeMetadata"}}
      }
    }
  ],
  "$defs": {
    "typeMetadata": {
      "type": "object",
      "required": ["type"],
      "properties": {
        "type": {"type": "string", "minLength": 1},
        "optional": {"type": "boolean"},
        "type_name": {"type": ["string", "null"]},
        "values": {
          "type": ["array", "null"],
          "items": {"type": ["string", "number"]}
        },
        "type_args": {
          "type": ["array", "null"],
          "items": {"$ref": "#/$defs/typeMetadata"}
        }
      }
    },
    "property": {
      "type": "object",
      "required": ["name", "type"],
      "properties": {
        "name": {"type": "string", "minLength": 1},
        "type": {"$ref": "#/$defs/typeMetadata"},
        "title": {"type": "string"},
        "description": {"type": ["string", "null"]},
        "required": {"type": "boolean"}
      }
    },
    "outputSlot": {
      "type": "object",
      "required": ["name", "type"],
      "properties": {
        "name": {"type": "string", "minLength": 1},
        "type": {"$ref": "#/$defs/typeMetadata"},
        "stream": {"type": "boolean"}
      }
    },
    "nodeMetadata": {
      "type": "object",
      "required": ["node_type"],
      "properties": {
        "node_type": {"type": "string", "minLength": 1},
        "title": {"type": "string"},
        "description": {"type": "string"},
        "namespace": {"type": "string"},
        "properties": {"type": ["array", "null"], "items": {"$ref": "#/$defs/property"}},
        "outputs": {"type": ["array", "null"], "items": {"$ref": "#/$defs/outputSlot"}},
        "is_dynamic": {"type": "boolean"},
        "expose_as_tool": {"type": "boolean"}
      }
    }
  }
}`
