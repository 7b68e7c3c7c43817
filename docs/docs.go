// Package docs registers the OpenAPI document served by gin-swagger. It is
// maintained by hand in the layout swag init emits; keep it in step with the
// handler annotations.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/notifications": {
            "get": {
                "security": [{"BearerAuth": []}],
                "description": "Returns a page of the caller's notifications, newest first. Supports weak ETag via If-None-Match and may return 304.",
                "produces": ["application/json"],
                "tags": ["Notifications"],
                "summary": "List notifications (paginated)",
                "operationId": "listNotifications",
                "parameters": [
                    {"type": "string", "description": "Return 304 if ETag matches", "name": "If-None-Match", "in": "header"},
                    {"minimum": 1, "type": "integer", "default": 1, "description": "Page number", "name": "page", "in": "query"},
                    {"maximum": 100, "minimum": 1, "type": "integer", "default": 20, "description": "Items per page", "name": "page_size", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.ListNotificationsResponse"}, "headers": {"ETag": {"type": "string", "description": "Weak ETag for current result"}}},
                    "304": {"description": "Not Modified", "schema": {"type": "string"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            },
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "Persists the notification and pushes it to the routed groups. With an Idempotency-Key a retry returns the original notification with 200 and dispatches nothing.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Staff"],
                "summary": "Create and dispatch a notification (staff)",
                "operationId": "createNotification",
                "parameters": [
                    {"type": "string", "example": "order-42-created", "description": "Idempotency key", "name": "Idempotency-Key", "in": "header"},
                    {"description": "Notification", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/services.DispatchRequest"}}
                ],
                "responses": {
                    "200": {"description": "Replay of an earlier request", "schema": {"$ref": "#/definitions/domain.View"}, "headers": {"Idempotent-Replay": {"type": "string", "description": "true"}}},
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/domain.View"}},
                    "400": {"description": "Validation failed", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "403": {"description": "Staff only", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            },
            "delete": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Notifications"],
                "summary": "Delete every notification",
                "operationId": "clearNotifications",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.BulkResponse"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/notifications/broadcast": {
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "Type must be system or promotion; expires_in_hours, when set, must be 1..720.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Staff"],
                "summary": "Broadcast to every connected client (staff)",
                "operationId": "broadcastNotification",
                "parameters": [
                    {"description": "Broadcast", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/services.BroadcastRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/domain.View"}},
                    "400": {"description": "Validation failed", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "403": {"description": "Staff only", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/notifications/preferences": {
            "get": {
                "security": [{"BearerAuth": []}],
                "description": "Returns the caller's preferences; defaults are returned when none were saved.",
                "produces": ["application/json"],
                "tags": ["Preferences"],
                "summary": "Get delivery preferences",
                "operationId": "getNotificationPreferences",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.Preference"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            },
            "put": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Preferences"],
                "summary": "Replace delivery preferences",
                "operationId": "updateNotificationPreferences",
                "parameters": [
                    {"description": "Preferences", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/domain.Preference"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.Preference"}},
                    "400": {"description": "Bad request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/notifications/read-all": {
            "post": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Notifications"],
                "summary": "Mark every notification read",
                "operationId": "markAllNotificationsRead",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.BulkResponse"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/notifications/stats": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Staff"],
                "summary": "Global notification statistics (staff)",
                "operationId": "notificationStats",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/repo.GlobalStats"}},
                    "403": {"description": "Staff only", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/notifications/test": {
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "Dispatches a low-priority system notification to the caller, over the live connection too.",
                "produces": ["application/json"],
                "tags": ["Notifications"],
                "summary": "Send a test notification to yourself",
                "operationId": "sendTestNotification",
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/domain.View"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/notifications/unread": {
            "get": {
                "security": [{"BearerAuth": []}],
                "description": "Returns up to 100 of the caller's unread notifications, newest first, and the full unread count.",
                "produces": ["application/json"],
                "tags": ["Notifications"],
                "summary": "List unread notifications",
                "operationId": "listUnreadNotifications",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.UnreadResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/notifications/unread/count": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Notifications"],
                "summary": "Count unread notifications",
                "operationId": "unreadCount",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.CountResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/notifications/{id}": {
            "get": {
                "security": [{"BearerAuth": []}],
                "description": "Returns a notification owned by the caller. Foreign and missing ids are both 404.",
                "produces": ["application/json"],
                "tags": ["Notifications"],
                "summary": "Get one notification",
                "operationId": "getNotification",
                "parameters": [
                    {"minimum": 1, "type": "integer", "description": "Notification ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.View"}},
                    "400": {"description": "Bad request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            },
            "delete": {
                "security": [{"BearerAuth": []}],
                "tags": ["Notifications"],
                "summary": "Delete one notification",
                "operationId": "dismissNotification",
                "parameters": [
                    {"minimum": 1, "type": "integer", "description": "Notification ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "204": {"description": "No Content", "schema": {"type": "string"}},
                    "400": {"description": "Bad request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/notifications/{id}/read": {
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "Idempotent: marking an already-read notification succeeds with changed=false.",
                "produces": ["application/json"],
                "tags": ["Notifications"],
                "summary": "Mark a notification read",
                "operationId": "markNotificationRead",
                "parameters": [
                    {"minimum": 1, "type": "integer", "description": "Notification ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.MarkReadResponse"}},
                    "400": {"description": "Bad request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "domain.Preference": {
            "type": "object",
            "properties": {
                "email_enabled": {"type": "boolean"},
                "new_orders": {"type": "boolean"},
                "new_users": {"type": "boolean"},
                "order_updates": {"type": "boolean"},
                "payment_updates": {"type": "boolean"},
                "promotions": {"type": "boolean"},
                "push_enabled": {"type": "boolean"},
                "quiet_hours_end": {"type": "string"},
                "quiet_hours_start": {"type": "string"},
                "sms_enabled": {"type": "boolean"},
                "sound_enabled": {"type": "boolean"},
                "sound_volume": {"type": "integer"},
                "stock_alerts": {"type": "boolean"},
                "system_updates": {"type": "boolean"},
                "updated_at": {"type": "string"},
                "user_id": {"type": "integer"}
            }
        },
        "domain.View": {
            "type": "object",
            "properties": {
                "action_url": {"type": "string"},
                "created_at": {"type": "string"},
                "expires_at": {"type": "string"},
                "icon": {"type": "string"},
                "id": {"type": "integer"},
                "is_broadcast": {"type": "boolean"},
                "is_expired": {"type": "boolean"},
                "message": {"type": "string"},
                "metadata": {"type": "object"},
                "priority": {"type": "string"},
                "priority_color": {"type": "string"},
                "read": {"type": "boolean"},
                "read_at": {"type": "string"},
                "title": {"type": "string"},
                "type": {"type": "string"}
            }
        },
        "handlers.BulkResponse": {
            "type": "object",
            "properties": {"affected": {"type": "integer", "example": 7}}
        },
        "handlers.CountResponse": {
            "type": "object",
            "properties": {"count": {"type": "integer", "example": 3}}
        },
        "handlers.ErrorResponse": {
            "type": "object",
            "properties": {
                "code": {"type": "string", "example": "not_found"},
                "message": {"type": "string", "example": "notification not found"},
                "request_id": {"type": "string", "example": "123e4567-e89b-12d3-a456-426614174000"}
            }
        },
        "handlers.ListNotificationsResponse": {
            "type": "object",
            "properties": {
                "notifications": {"type": "array", "items": {"$ref": "#/definitions/domain.View"}},
                "pagination": {"$ref": "#/definitions/handlers.Pagination"}
            }
        },
        "handlers.MarkReadResponse": {
            "type": "object",
            "properties": {
                "changed": {"type": "boolean", "example": true},
                "id": {"type": "integer", "example": 42}
            }
        },
        "handlers.Pagination": {
            "type": "object",
            "properties": {
                "has_next": {"type": "boolean"},
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total": {"type": "integer"},
                "total_pages": {"type": "integer"}
            }
        },
        "handlers.UnreadResponse": {
            "type": "object",
            "properties": {
                "count": {"type": "integer", "example": 3},
                "notifications": {"type": "array", "items": {"$ref": "#/definitions/domain.View"}}
            }
        },
        "repo.GlobalStats": {
            "type": "object",
            "properties": {
                "active_users": {"type": "integer"},
                "by_priority": {"type": "object", "additionalProperties": {"type": "integer"}},
                "by_type": {"type": "object", "additionalProperties": {"type": "integer"}},
                "last_24h": {"type": "integer"},
                "last_30d": {"type": "integer"},
                "last_7d": {"type": "integer"},
                "total_notifications": {"type": "integer"},
                "total_unread": {"type": "integer"}
            }
        },
        "services.BroadcastRequest": {
            "type": "object",
            "properties": {
                "action_url": {"type": "string"},
                "expires_in_hours": {"type": "integer"},
                "message": {"type": "string"},
                "priority": {"type": "string"},
                "title": {"type": "string"},
                "type": {"type": "string"}
            }
        },
        "services.DispatchRequest": {
            "type": "object",
            "properties": {
                "action_url": {"type": "string"},
                "expires_at": {"type": "string"},
                "is_broadcast": {"type": "boolean"},
                "message": {"type": "string"},
                "metadata": {"type": "object", "additionalProperties": true},
                "order_id": {"type": "integer"},
                "priority": {"type": "string"},
                "product_id": {"type": "integer"},
                "recipient_id": {"type": "integer"},
                "title": {"type": "string"},
                "type": {"type": "string"},
                "user_id": {"type": "integer"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "description": "Type \"Bearer\" followed by a space and the access token.",
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Notification Service API",
	Description:      "Real-time notification fan-out for the commerce backend: per-user inboxes, delivery preferences and staff dispatch. Live delivery is over the /ws WebSocket.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
