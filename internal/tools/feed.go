package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/leonardcser/magnetite/internal/aggregator"
	"github.com/leonardcser/magnetite/internal/feed"
)

const (
	FormatRSS  = "rss"
	FormatList = "list"
)

// Feeds is the part of the aggregator the tool uses.
type Feeds interface {
	Channel(ctx context.Context, site, category string) (feed.Channel, aggregator.Source, error)
}

// NewFeedTool describes the "rss-feed" tool.
func NewFeedTool(siteNames []string) mcp.Tool {
	return mcp.NewTool("rss-feed",
		mcp.WithDescription(multiline(
			"Builds an RSS feed for a category page of a supported site",
			"\nFunctionality:",
			"- Scrapes the category page and every article it lists",
			"- Returns the RSS 2.0 document, or a numbered list of items with format=list",
			"\nUsage notes:",
			"- Supported sites: "+strings.Join(siteNames, ", "),
			"- Results are cached; repeated calls within the cache expiry do not hit the site",
		)),
		mcp.WithString("site", mcp.Required(), mcp.Description("Site name, e.g. gcores")),
		mcp.WithString("category", mcp.Required(), mcp.Description("Category path segment, e.g. articles")),
		mcp.WithString("format", mcp.Enum(FormatRSS, FormatList), mcp.Description("Output format, rss by default")),
	)
}

// FeedHandler returns the MCP tool handler for the "rss-feed" tool.
func FeedHandler(feeds Feeds) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if ctx.Err() != nil {
			return mcp.NewToolResultError(ctx.Err().Error()), nil
		}
		site, err := req.RequireString("site")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		category, err := req.RequireString("category")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		format := req.GetString("format", FormatRSS)

		c, _, err := feeds.Channel(ctx, site, category)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		switch format {
		case FormatList:
			return mcp.NewToolResultText(formatItems(c)), nil
		case FormatRSS:
			doc, err := c.RSS()
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			return mcp.NewToolResultText(doc), nil
		default:
			return mcp.NewToolResultError(fmt.Sprintf("unknown format %q", format)), nil
		}
	}
}

// formatItems renders the channel title and an ordered list of items.
func formatItems(c feed.Channel) string {
	var sb strings.Builder
	sb.WriteString("# ")
	sb.WriteString(c.Title)
	sb.WriteString("\n\n")
	if len(c.Items) == 0 {
		sb.WriteString("No items.")
		return sb.String()
	}
	for i, it := range c.Items {
		sb.WriteString(fmt.Sprintf("%d. %s\n   %s\n", i+1, it.Title, it.Link))
	}
	return strings.TrimRight(sb.String(), "\n")
}

// multiline joins lines with newlines for tool descriptions.
func multiline(lines ...string) string { return strings.Join(lines, "\n") }
