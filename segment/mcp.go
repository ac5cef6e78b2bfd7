package segment

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/vizopt/kit"
	"github.com/hazyhaar/vizopt/segment/section"
)

// maxRankImages bounds vizopt_rank_section.
const maxRankImages = 10

// RegisterMCP registers the tools that are safe on any transport:
// vizopt_analyze.
func (s *Service) RegisterMCP(srv *mcp.Server) {
	s.registerAnalyzeTool(srv)
}

// RegisterLocalMCP registers every tool, including vizopt_rank_section,
// which reads files from this host. Use it only for stdio, where the client
// already runs with local access.
func (s *Service) RegisterLocalMCP(srv *mcp.Server) {
	s.registerAnalyzeTool(srv)
	s.registerRankSectionTool(srv)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	sc := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		sc["required"] = required
	}
	return sc
}

func (s *Service) registerAnalyzeTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "vizopt_analyze",
		Description: "Screenshot three URLs, rank their header, body and footer against the reference dataset and return design suggestions for the best section images.",
		InputSchema: inputSchema(map[string]any{
			"urls": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "Exactly three absolute http(s) URLs",
			},
			"website_type": map[string]any{"type": "string", "description": "Kind of website, default e-commerce"},
		}, []string{"urls"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		return s.Analyze(ctx, *req.(*AnalyzeRequest))
	}
	endpoint = kit.WithTransportTag("mcp")(kit.Logging(s.logger, "vizopt_analyze")(endpoint))

	kit.RegisterMCPTool(srv, tool, endpoint, kit.DecodeArgs[AnalyzeRequest]())
}

type rankSectionReq struct {
	Section string   `json:"section"`
	Images  []string `json:"images"`
}

func (s *Service) registerRankSectionTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "vizopt_rank_section",
		Description: "Rank local images against the reference dataset of one section (header, body or footer) without capturing pages.",
		InputSchema: inputSchema(map[string]any{
			"section": map[string]any{"type": "string", "enum": []string{"header", "body", "footer"}},
			"images": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "Paths of the images to rank",
			},
		}, []string{"section", "images"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*rankSectionReq)
		sec, err := section.Parse(r.Section)
		if err != nil {
			return nil, err
		}
		if len(r.Images) == 0 || len(r.Images) > maxRankImages {
			return nil, fmt.Errorf("images: between 1 and %d paths are required", maxRankImages)
		}
		return s.ranker.Rank(ctx, sec, r.Images)
	}
	endpoint = kit.WithTransportTag("mcp")(kit.Logging(s.logger, "vizopt_rank_section")(endpoint))

	kit.RegisterMCPTool(srv, tool, endpoint, kit.DecodeArgs[rankSectionReq]())
}
