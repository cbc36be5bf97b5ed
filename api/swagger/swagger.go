package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "SIS API",
        "description": "Student information system with a ledgered status engine",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Auth", "description": "Login and token lifecycle"},
        {"name": "Students", "description": "Roster, status history and summaries"},
        {"name": "Discipline", "description": "Disciplinary actions and suspensions"},
        {"name": "Exams", "description": "Examinations, schedules and results"},
        {"name": "Leave", "description": "Student leave requests"},
        {"name": "Terms", "description": "Academic sessions"},
        {"name": "Admin", "description": "Sweep, promotions and audit logs"}
    ],
    "paths": {
        "/auth/login": {
            "post": {
                "tags": ["Auth"],
                "summary": "Authenticate with email and password",
                "responses": {
                    "200": {"description": "Token pair", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials"}
                }
            }
        },
        "/auth/refresh": {
            "post": {
                "tags": ["Auth"],
                "summary": "Exchange a refresh token for a new pair",
                "responses": {
                    "200": {"description": "Token pair"},
                    "401": {"description": "Unknown or revoked token"}
                }
            }
        },
        "/auth/logout": {
            "post": {
                "tags": ["Auth"],
                "summary": "Revoke the presented refresh token",
                "responses": {
                    "204": {"description": "Revoked"}
                }
            }
        },
        "/students": {
            "get": {
                "tags": ["Students"],
                "summary": "List students",
                "responses": {
                    "200": {"description": "Student page", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Students"],
                "summary": "Enroll a student",
                "responses": {
                    "201": {"description": "Created"},
                    "400": {"description": "Validation error"}
                }
            }
        },
        "/students/{id}": {
            "get": {
                "tags": ["Students"],
                "summary": "Get a student",
                "responses": {
                    "200": {"description": "Student"},
                    "404": {"description": "Not found"}
                }
            },
            "put": {
                "tags": ["Students"],
                "summary": "Update student profile fields",
                "responses": {
                    "200": {"description": "Updated"}
                }
            }
        },
        "/students/{id}/status-history": {
            "get": {
                "tags": ["Students"],
                "summary": "Full status transition history, newest first",
                "responses": {
                    "200": {"description": "Transition records"}
                }
            }
        },
        "/students/{id}/status-history/export": {
            "get": {
                "tags": ["Students"],
                "summary": "Download history as csv, pdf or xlsx",
                "responses": {
                    "200": {"description": "File download"}
                }
            }
        },
        "/students/{id}/status-summary": {
            "get": {
                "tags": ["Students"],
                "summary": "Cached status summary",
                "responses": {
                    "200": {"description": "Summary"}
                }
            }
        },
        "/discipline": {
            "get": {
                "tags": ["Discipline"],
                "summary": "List disciplinary actions",
                "responses": {
                    "200": {"description": "Action page"}
                }
            },
            "post": {
                "tags": ["Discipline"],
                "summary": "Record an action, optionally suspending or expelling",
                "responses": {
                    "201": {"description": "Created"},
                    "409": {"description": "Transition rejected"}
                }
            }
        },
        "/discipline/{id}": {
            "delete": {
                "tags": ["Discipline"],
                "summary": "Void an action, reversing its status effects",
                "responses": {
                    "204": {"description": "Deleted"},
                    "409": {"description": "Status changed since"}
                }
            }
        },
        "/discipline/students/{id}/restore": {
            "post": {
                "tags": ["Discipline"],
                "summary": "Lift a suspension manually",
                "responses": {
                    "200": {"description": "Restored"}
                }
            }
        },
        "/exams": {
            "get": {
                "tags": ["Exams"],
                "summary": "List examinations for a term",
                "responses": {
                    "200": {"description": "Examinations"}
                }
            },
            "post": {
                "tags": ["Exams"],
                "summary": "Create an examination with its schedules",
                "responses": {
                    "201": {"description": "Created"}
                }
            }
        },
        "/exams/schedules/{id}/results": {
            "post": {
                "tags": ["Exams"],
                "summary": "Save results, grading the schedule",
                "responses": {
                    "200": {"description": "Saved"},
                    "409": {"description": "Already graded"}
                }
            },
            "delete": {
                "tags": ["Exams"],
                "summary": "Clear results, reopening the exam if completed",
                "responses": {
                    "200": {"description": "Cleared"}
                }
            }
        },
        "/leave": {
            "get": {
                "tags": ["Leave"],
                "summary": "List leave requests",
                "responses": {
                    "200": {"description": "Request page"}
                }
            },
            "post": {
                "tags": ["Leave"],
                "summary": "File a leave request",
                "responses": {
                    "201": {"description": "Created"}
                }
            }
        },
        "/leave/{id}/decision": {
            "post": {
                "tags": ["Leave"],
                "summary": "Approve or reject a pending request",
                "responses": {
                    "200": {"description": "Decided"},
                    "409": {"description": "Already decided"}
                }
            }
        },
        "/terms": {
            "get": {
                "tags": ["Terms"],
                "summary": "List academic terms",
                "responses": {
                    "200": {"description": "Terms"}
                }
            },
            "post": {
                "tags": ["Terms"],
                "summary": "Create a scheduled term",
                "responses": {
                    "201": {"description": "Created"}
                }
            }
        },
        "/terms/current": {
            "get": {
                "tags": ["Terms"],
                "summary": "Currently active term",
                "responses": {
                    "200": {"description": "Term"},
                    "404": {"description": "No active term"}
                }
            }
        },
        "/terms/{id}/activate": {
            "post": {
                "tags": ["Terms"],
                "summary": "Activate a term, completing the previous one",
                "responses": {
                    "200": {"description": "Activated"}
                }
            }
        },
        "/admin/sweeps/expired": {
            "post": {
                "tags": ["Admin"],
                "summary": "Run the expired-suspension restore sweep now",
                "responses": {
                    "200": {"description": "Sweep report"}
                }
            }
        },
        "/admin/promotions": {
            "post": {
                "tags": ["Admin"],
                "summary": "Promote or graduate a whole class",
                "responses": {
                    "200": {"description": "Per-student outcomes"}
                }
            }
        },
        "/admin/audit-logs": {
            "get": {
                "tags": ["Admin"],
                "summary": "List audit log entries",
                "responses": {
                    "200": {"description": "Entries"}
                }
            }
        }
    },
    "definitions": {
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
