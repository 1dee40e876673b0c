// Package docs holds the OpenAPI description served by the swagger build of
// the HTTP layer. Regenerate with `swag init -g cmd/tensord/docs.go`.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/healthz": {"get": {"produces": ["text/plain"], "summary": "Liveness probe", "responses": {"200": {"description": "ok"}}}},
        "/readyz": {"get": {"produces": ["text/plain"], "summary": "Readiness probe", "responses": {"200": {"description": "ready"}, "503": {"description": "loading"}}}},
        "/status": {"get": {"produces": ["application/json"], "summary": "Runtime status", "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/types.StatusResponse"}}}}},
        "/diagnostics": {"get": {"produces": ["application/json"], "summary": "Native library search report", "responses": {"200": {"description": "OK", "schema": {"type": "object"}}}}},
        "/models": {"get": {"produces": ["application/json"], "summary": "Cached models and artifacts available on disk", "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/types.ModelsResponse"}}}}},
        "/models/{name}": {"delete": {"summary": "Remove a model from the cache", "parameters": [{"type": "string", "description": "model name", "name": "name", "in": "path", "required": true}], "responses": {"204": {"description": "No Content"}, "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}}}},
        "/models/{name}/history": {"get": {"produces": ["application/json"], "summary": "Superseded versions of a model, oldest first", "parameters": [{"type": "string", "description": "model name", "name": "name", "in": "path", "required": true}], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/types.HistoryResponse"}}}}},
        "/models/{name}/load": {"post": {"produces": ["application/json"], "summary": "Load a model from the model directory into the cache", "parameters": [{"type": "string", "description": "model name", "name": "name", "in": "path", "required": true}], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/types.Model"}}, "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}, "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}, "507": {"description": "Insufficient Storage", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}}}},
        "/devices/{id}": {"get": {"produces": ["application/json"], "summary": "Point-in-time device snapshot", "parameters": [{"type": "integer", "description": "device id", "name": "id", "in": "path", "required": true}], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/types.DeviceResponse"}}, "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}, "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}}}}
    },
    "definitions": {
        "types.ErrorResponse": {"type": "object", "properties": {"error": {"type": "string"}, "code": {"type": "integer"}}},
        "types.Artifact": {"type": "object", "properties": {"name": {"type": "string"}, "version": {"type": "string"}, "type": {"type": "string"}, "path": {"type": "string"}, "size_bytes": {"type": "integer"}}},
        "types.Model": {"type": "object", "properties": {"name": {"type": "string"}, "version": {"type": "string"}, "type": {"type": "string"}, "size_bytes": {"type": "integer"}, "size": {"type": "string"}, "storage_path": {"type": "string"}, "device_target": {"type": "string"}, "loaded_at_unix": {"type": "integer"}, "last_accessed_at_unix": {"type": "integer"}, "access_count": {"type": "integer"}, "is_loaded": {"type": "boolean"}}},
        "types.ModelsResponse": {"type": "object", "properties": {"models": {"type": "array", "items": {"$ref": "#/definitions/types.Model"}}, "available": {"type": "array", "items": {"$ref": "#/definitions/types.Artifact"}}}},
        "types.HistoryResponse": {"type": "object", "properties": {"name": {"type": "string"}, "versions": {"type": "array", "items": {"$ref": "#/definitions/types.Model"}}}},
        "types.DeviceResponse": {"type": "object", "properties": {"device_id": {"type": "integer"}, "compute_capability": {"type": "string"}, "total_memory_bytes": {"type": "integer"}, "free_memory_bytes": {"type": "integer"}, "used_memory_bytes": {"type": "integer"}, "multiprocessor_count": {"type": "integer"}, "timestamp_unix_ms": {"type": "integer"}}},
        "types.StatusResponse": {"type": "object", "properties": {"state": {"type": "string"}, "mode": {"type": "string"}, "gpu_available": {"type": "boolean"}, "device_count": {"type": "integer"}, "loaded_path": {"type": "string"}, "last_error": {"type": "string"}, "pool": {"type": "object"}, "registry": {"type": "object"}, "uptime_seconds": {"type": "integer"}, "server_time_unix": {"type": "integer"}}}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{"http"},
	Title:            "tensord API",
	Description:      "Observability and model cache API for the tensord compute runtime.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
