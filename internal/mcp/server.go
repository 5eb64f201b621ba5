// Package mcp is the stateful agent front end: an MCP server exposing the
// OKR aggregate as resources and tools for automated callers.
//
// A connection is bound to one principal at establishment via its bearer
// access token. That binding is identity only: every tool invocation and
// resource read goes back to the authorization gate for a fresh decision,
// so a role change or revocation takes effect on the next call rather
// than surviving for the connection's lifetime.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/wolfeidau/okrd/internal/auth"
	"github.com/wolfeidau/okrd/internal/models"
	"github.com/wolfeidau/okrd/internal/okr"
	"github.com/wolfeidau/okrd/internal/store"
)

const (
	serverName = "OKR Manager"

	objectivesURIPrefix = "okrmanager://objectives/"
	keyResultURIPrefix  = "okrmanager://key_result/"
)

// Server wires the MCP tools and resources over the OKR service.
type Server struct {
	store store.TenantStore
	gate  auth.Gate

	mcpServer *server.MCPServer
}

// New creates the agent front end and registers all tools and resources.
func New(tenantStore store.TenantStore, gate auth.Gate, version string) *Server {
	s := &Server{
		store: tenantStore,
		gate:  gate,
	}

	s.mcpServer = server.NewMCPServer(
		serverName,
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithRecovery(),
	)

	s.registerResources()
	s.registerTools()

	return s
}

// Handler returns the streamable HTTP handler for mounting. The HTTP
// context function carries the principal bound by the bearer middleware
// into tool and resource handler contexts.
func (s *Server) Handler() http.Handler {
	return server.NewStreamableHTTPServer(s.mcpServer,
		server.WithHTTPContextFunc(func(ctx context.Context, r *http.Request) context.Context {
			if principal := auth.PrincipalFromContext(r.Context()); principal != nil {
				return auth.WithPrincipal(ctx, principal)
			}
			return ctx
		}),
	)
}

// service binds an OKR service to the connection's organization.
func (s *Server) service(ctx context.Context) (*okr.Service, *auth.Principal, error) {
	principal := auth.PrincipalFromContext(ctx)
	if principal == nil {
		return nil, nil, auth.ErrUnauthenticated
	}
	return okr.NewService(s.store, principal.OrgID), principal, nil
}

// withRequiredPermission gates a tool handler on a fresh policy decision.
func (s *Server) withRequiredPermission(action auth.Action, resource auth.Resource, handler server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		principal := auth.PrincipalFromContext(ctx)
		if principal == nil {
			return mcp.NewToolResultError("unauthenticated: no principal bound to connection"), nil
		}

		if err := s.gate.Check(ctx, principal, action, resource); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		return handler(ctx, request)
	}
}

// requireRead gates a resource read the same way tool calls are gated.
func (s *Server) requireRead(ctx context.Context, resource auth.Resource) (*okr.Service, error) {
	service, principal, err := s.service(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.gate.Check(ctx, principal, auth.ActionRead, resource); err != nil {
		return nil, err
	}

	return service, nil
}

func (s *Server) registerResources() {
	s.mcpServer.AddResourceTemplate(
		mcp.NewResourceTemplate(objectivesURIPrefix+"{id}", "Objectives",
			mcp.WithTemplateDescription("A top-level objective with its key results"),
			mcp.WithTemplateMIMEType("application/json"),
		),
		func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
			service, err := s.requireRead(ctx, auth.ResourceObjective)
			if err != nil {
				return nil, err
			}

			objectives, err := service.Get(ctx)
			if err != nil {
				return nil, err
			}

			id := strings.TrimPrefix(request.Params.URI, objectivesURIPrefix)
			objective := models.FindObjective(objectives, id)
			if objective == nil {
				return nil, fmt.Errorf("%w: %s", okr.ErrObjectiveNotFound, id)
			}

			return jsonResourceContents(request.Params.URI, objective)
		},
	)

	s.mcpServer.AddResourceTemplate(
		mcp.NewResourceTemplate(keyResultURIPrefix+"{id}", "Key Result",
			mcp.WithTemplateDescription("A single key result with its attainment"),
			mcp.WithTemplateMIMEType("application/json"),
		),
		func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
			service, err := s.requireRead(ctx, auth.ResourceKeyResult)
			if err != nil {
				return nil, err
			}

			objectives, err := service.Get(ctx)
			if err != nil {
				return nil, err
			}

			id := strings.TrimPrefix(request.Params.URI, keyResultURIPrefix)
			for i := range objectives {
				if keyResult := models.FindKeyResult(&objectives[i], id); keyResult != nil {
					return jsonResourceContents(request.Params.URI, keyResult)
				}
			}

			return nil, fmt.Errorf("%w: %s", okr.ErrKeyResultNotFound, id)
		},
	)

	// Listable views so agents can enumerate before fetching by id
	s.mcpServer.AddResource(
		mcp.NewResource("okrmanager://objectives", "All Objectives",
			mcp.WithResourceDescription("Every objective and key result for the organization"),
			mcp.WithMIMEType("application/json"),
		),
		func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
			service, err := s.requireRead(ctx, auth.ResourceObjective)
			if err != nil {
				return nil, err
			}

			objectives, err := service.Get(ctx)
			if err != nil {
				return nil, err
			}

			return jsonResourceContents(request.Params.URI, objectives)
		},
	)

	s.mcpServer.AddResource(
		mcp.NewResource("okrmanager://key_results", "All Key Results",
			mcp.WithResourceDescription("Every key result across all objectives"),
			mcp.WithMIMEType("application/json"),
		),
		func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
			service, err := s.requireRead(ctx, auth.ResourceKeyResult)
			if err != nil {
				return nil, err
			}

			objectives, err := service.Get(ctx)
			if err != nil {
				return nil, err
			}

			keyResults := []models.KeyResult{}
			for _, objective := range objectives {
				keyResults = append(keyResults, objective.KeyResults...)
			}

			return jsonResourceContents(request.Params.URI, keyResults)
		},
	)
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcp.NewTool("listObjectives",
			mcp.WithDescription("View all objectives and key results for the organization"),
		),
		s.withRequiredPermission(auth.ActionRead, auth.ResourceObjective,
			func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				service, principal, err := s.service(ctx)
				if err != nil {
					return mcp.NewToolResultError(err.Error()), nil
				}

				objectives, err := service.Get(ctx)
				if err != nil {
					return mcp.NewToolResultError(err.Error()), nil
				}

				return formatResult("Objectives retrieved successfully", objectives, principal.OrgID), nil
			}),
	)

	s.mcpServer.AddTool(
		mcp.NewTool("addObjective",
			mcp.WithDescription("Add a new top-level objective for the organization"),
			mcp.WithString("objectiveText", mcp.Required(),
				mcp.Description("Text of the new objective")),
		),
		s.withRequiredPermission(auth.ActionCreate, auth.ResourceObjective,
			func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				objectiveText, err := request.RequireString("objectiveText")
				if err != nil {
					return mcp.NewToolResultError(err.Error()), nil
				}

				service, principal, err := s.service(ctx)
				if err != nil {
					return mcp.NewToolResultError(err.Error()), nil
				}

				objectives, err := service.AddObjective(ctx, objectiveText)
				if err != nil {
					return mcp.NewToolResultError(err.Error()), nil
				}

				return formatResult("Objective added successfully", objectives, principal.OrgID), nil
			}),
	)

	s.mcpServer.AddTool(
		mcp.NewTool("deleteObjective",
			mcp.WithDescription("Remove an existing top-level objective from the organization"),
			mcp.WithString("okrID", mcp.Required(),
				mcp.Description("ID of the objective to remove")),
		),
		s.withRequiredPermission(auth.ActionDelete, auth.ResourceObjective,
			func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				okrID, err := request.RequireString("okrID")
				if err != nil {
					return mcp.NewToolResultError(err.Error()), nil
				}

				service, principal, err := s.service(ctx)
				if err != nil {
					return mcp.NewToolResultError(err.Error()), nil
				}

				objectives, err := service.DeleteObjective(ctx, okrID)
				if err != nil {
					return mcp.NewToolResultError(err.Error()), nil
				}

				return formatResult("Objective deleted successfully", objectives, principal.OrgID), nil
			}),
	)

	s.mcpServer.AddTool(
		mcp.NewTool("addKeyResult",
			mcp.WithDescription("Add a new key result to a specific objective"),
			mcp.WithString("okrID", mcp.Required(),
				mcp.Description("ID of the objective to add the key result to")),
			mcp.WithString("keyResultText", mcp.Required(),
				mcp.Description("Text of the new key result")),
		),
		s.withRequiredPermission(auth.ActionCreate, auth.ResourceKeyResult,
			func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				okrID, err := request.RequireString("okrID")
				if err != nil {
					return mcp.NewToolResultError(err.Error()), nil
				}
				keyResultText, err := request.RequireString("keyResultText")
				if err != nil {
					return mcp.NewToolResultError(err.Error()), nil
				}

				service, principal, err := s.service(ctx)
				if err != nil {
					return mcp.NewToolResultError(err.Error()), nil
				}

				objectives, err := service.AddKeyResult(ctx, okrID, keyResultText)
				if err != nil {
					return mcp.NewToolResultError(err.Error()), nil
				}

				return formatResult("Key result added successfully", objectives, principal.OrgID), nil
			}),
	)

	s.mcpServer.AddTool(
		mcp.NewTool("setKeyResultAttainment",
			mcp.WithDescription("Set the attainment value for a specific key result in a specific objective"),
			mcp.WithString("okrID", mcp.Required(),
				mcp.Description("ID of the objective owning the key result")),
			mcp.WithString("keyResultID", mcp.Required(),
				mcp.Description("ID of the key result to update")),
			mcp.WithNumber("attainment", mcp.Required(),
				mcp.Description("Attainment percentage"),
				mcp.Min(0), mcp.Max(100)),
		),
		s.withRequiredPermission(auth.ActionUpdate, auth.ResourceKeyResult,
			func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				okrID, err := request.RequireString("okrID")
				if err != nil {
					return mcp.NewToolResultError(err.Error()), nil
				}
				keyResultID, err := request.RequireString("keyResultID")
				if err != nil {
					return mcp.NewToolResultError(err.Error()), nil
				}
				attainment, err := request.RequireInt("attainment")
				if err != nil {
					return mcp.NewToolResultError(err.Error()), nil
				}

				service, principal, err := s.service(ctx)
				if err != nil {
					return mcp.NewToolResultError(err.Error()), nil
				}

				objectives, err := service.SetKeyResultAttainment(ctx, okrID, keyResultID, attainment)
				if err != nil {
					return mcp.NewToolResultError(err.Error()), nil
				}

				return formatResult("Key result attainment set successfully", objectives, principal.OrgID), nil
			}),
	)

	s.mcpServer.AddTool(
		mcp.NewTool("deleteKeyResult",
			mcp.WithDescription("Remove a key result from a specific objective"),
			mcp.WithString("okrID", mcp.Required(),
				mcp.Description("ID of the objective owning the key result")),
			mcp.WithString("keyResultID", mcp.Required(),
				mcp.Description("ID of the key result to remove")),
		),
		s.withRequiredPermission(auth.ActionDelete, auth.ResourceKeyResult,
			func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				okrID, err := request.RequireString("okrID")
				if err != nil {
					return mcp.NewToolResultError(err.Error()), nil
				}
				keyResultID, err := request.RequireString("keyResultID")
				if err != nil {
					return mcp.NewToolResultError(err.Error()), nil
				}

				service, principal, err := s.service(ctx)
				if err != nil {
					return mcp.NewToolResultError(err.Error()), nil
				}

				objectives, err := service.DeleteKeyResult(ctx, okrID, keyResultID)
				if err != nil {
					return mcp.NewToolResultError(err.Error()), nil
				}

				return formatResult("Key result deleted successfully", objectives, principal.OrgID), nil
			}),
	)
}

// formatResult renders a tool result: a human-readable confirmation with
// the full new aggregate state serialized for machine consumption.
func formatResult(description string, objectives []models.Objective, orgID string) *mcp.CallToolResult {
	state, err := json.MarshalIndent(objectives, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to serialize state: %v", err))
	}

	return mcp.NewToolResultText(fmt.Sprintf(
		"Success! %s\n\nNew state:\n%s\n\nFor Organization:\n%s",
		description, state, orgID))
}

func jsonResourceContents(uri string, value any) ([]mcp.ResourceContents, error) {
	encoded, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to serialize resource: %w", err)
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(encoded),
		},
	}, nil
}
