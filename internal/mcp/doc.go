// Package mcp implements a Model Context Protocol (MCP) server for a
// Canvas LMS instance.  It exposes the platform's courses, assignments,
// submissions, pages, modules, sections and rubrics through MCP tools
// that AI agents can call, including a submission content tool that
// aggregates a submission's text, attachment metadata and optionally
// the attachment bytes into one response.
//
// All data tools are read-only against Canvas; the only write surface
// is the explicit grade_submission tool.
//
// Transport: the server supports two transports selectable at runtime:
//   - stdio – standard MCP stdio transport (default); suitable for
//     local agent integration (e.g. Claude Desktop, VS Code Copilot).
//     The stdio channel itself is the session: one process serves
//     exactly one conversation.
//   - sse   – HTTP/SSE transport for remote agents; many concurrent
//     sessions are multiplexed by the gateway package, each bound to
//     its own Server instance.
package mcp
