package main

import (
	"log"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

func main() {
	s := server.NewMCPServer(
		"stackinspector",
		"0.1.0",
		server.WithToolCapabilities(true),
		server.WithLogging(),
	)

	summarizeTool := mcp.NewTool("summarize_dump",
		mcp.WithDescription("Summarize a jstack thread dump: total threads, per-state counts and wait channels"),
		mcp.WithString("file_path",
			mcp.Required(),
			mcp.Description("Path to the jstack output file"),
		),
		mcp.WithString("rules_path",
			mcp.Description("Optional YAML rules file, defaults to the built-in rules"),
		),
	)
	s.AddTool(summarizeTool, summarizeHandler)

	rankTool := mcp.NewTool("rank_frames",
		mcp.WithDescription("Rank the most frequent call frames of a thread dump, optionally filtered by thread state or name"),
		mcp.WithString("file_path",
			mcp.Required(),
			mcp.Description("Path to the jstack output file"),
		),
		mcp.WithString("state",
			mcp.Description("Only count threads in this state: NEW, BLOCKED, TERMINATED, RUNNABLE, WAITING, TIMED_WAITING"),
		),
		mcp.WithString("name",
			mcp.Description("Only count threads whose name contains this substring"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of frames to return (default: 20, 0 for no limit)"),
		),
		mcp.WithNumber("threshold",
			mcp.Description("Stop at the first frame seen fewer times than this (default: none)"),
		),
	)
	s.AddTool(rankTool, rankFramesHandler)

	seriesTool := mcp.NewTool("analyze_series",
		mcp.WithDescription("Analyze a directory of thread dumps taken over time: trends, rule findings and hot paths"),
		mcp.WithString("dir",
			mcp.Required(),
			mcp.Description("Directory containing the dump files"),
		),
		mcp.WithString("business_prefixes",
			mcp.Description("Comma separated package prefixes of the application code, e.g. com.example.shop"),
		),
		mcp.WithString("rules_path",
			mcp.Description("Optional YAML rules file, defaults to the built-in rules"),
		),
	)
	s.AddTool(seriesTool, analyzeSeriesHandler)

	histoTool := mcp.NewTool("compare_histograms",
		mcp.WithDescription("Compare jmap -histo outputs and report the classes with the largest memory footprint"),
		mcp.WithString("dir",
			mcp.Required(),
			mcp.Description("Directory containing jmap -histo output files"),
		),
		mcp.WithBoolean("delta",
			mcp.Description("Report values relative to the first histogram"),
		),
		mcp.WithNumber("top",
			mcp.Description("Number of classes to report (default: 10)"),
		),
	)
	s.AddTool(histoTool, compareHistogramsHandler)

	if err := server.ServeStdio(s); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
