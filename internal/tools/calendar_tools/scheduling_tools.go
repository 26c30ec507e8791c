package calendar_tools

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/teemow/voicecal/internal/calendar"
)

// CheckFreeBusy handles checkFreeBusy.
func (h *Handler) CheckFreeBusy(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return h.run(ctx, request, ToolCheckFreeBusy, h.checkFreeBusy)
}

func (h *Handler) checkFreeBusy(ctx context.Context, c call, args map[string]any) (response, error) {
	var req freeBusyRequest
	if err := decodeArgs(args, &req); err != nil {
		return nil, err
	}
	loc := h.location()
	window, err := parseRange(req.TimeMin, req.TimeMax, loc)
	if err != nil {
		return nil, err
	}
	if err := h.connect(ctx, c); err != nil {
		return nil, err
	}

	busy, err := h.gw.QueryFreeBusy(ctx, window.Start, window.End)
	if err != nil {
		return nil, h.providerError(c, err, providerFailure("checking your availability"))
	}
	c.logger.Debug("Queried free/busy", slog.Int("busy_periods", len(busy)))

	busySpans := newTimeSpans(busy, "busy", loc)
	resp := freeBusyResponse{
		IsAvailable:  len(busy) == 0,
		HasConflicts: len(busy) > 0,
		BusyTimes:    busySpans,
		FreeTimes:    newTimeSpans(calendar.FreeSlots(window, busy), "free", loc),
	}
	if len(busy) == 0 {
		resp.baseResponse = ok(fmt.Sprintf("You're completely free between %s and %s",
			formatForVoice(window.Start, false, loc), formatForVoice(window.End, false, loc)))
		return resp, nil
	}

	periods := make([]string, 0, len(busySpans))
	for _, s := range busySpans {
		periods = append(periods, s.Description)
	}
	resp.baseResponse = ok(fmt.Sprintf("You have %d busy period(s): %s", len(busy), strings.Join(periods, ", ")))
	return resp, nil
}

// CheckSchedulingConflict handles checkSchedulingConflict.
func (h *Handler) CheckSchedulingConflict(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return h.run(ctx, request, ToolCheckConflict, h.checkSchedulingConflict)
}

func (h *Handler) checkSchedulingConflict(ctx context.Context, c call, args map[string]any) (response, error) {
	var req conflictRequest
	if err := decodeArgs(args, &req); err != nil {
		return nil, err
	}
	loc := h.location()
	proposed, err := parseRange(req.StartTime, req.EndTime, loc)
	if err != nil {
		return nil, err
	}
	if err := h.connect(ctx, c); err != nil {
		return nil, err
	}

	busy, err := h.gw.QueryFreeBusy(ctx, proposed.Start, proposed.End)
	if err != nil {
		return nil, h.providerError(c, err, providerFailure("checking your availability"))
	}

	var conflicts []calendar.TimeRange
	for _, b := range busy {
		if b.Overlaps(proposed) {
			conflicts = append(conflicts, b)
		}
	}

	resp := conflictResponse{
		HasConflict: len(conflicts) > 0,
		Conflicts:   newTimeSpans(conflicts, "busy", loc),
	}
	if len(conflicts) > 0 {
		resp.baseResponse = ok(fmt.Sprintf("That time conflicts with %d existing commitment(s).", len(conflicts)))
	} else {
		resp.baseResponse = ok(fmt.Sprintf("You're available from %s to %s.",
			formatForVoice(proposed.Start, false, loc), formatForVoice(proposed.End, false, loc)))
	}
	return resp, nil
}

func checkFreeBusyTool() mcp.Tool {
	return mcp.NewTool(ToolCheckFreeBusy,
		mcp.WithDescription("Check if the user is free or busy during a specific time period"),
		sessionParam(),
		mcp.WithString("timeMin",
			mcp.Required(),
			mcp.Description(timeDescription("Start of the period to check")),
		),
		mcp.WithString("timeMax",
			mcp.Required(),
			mcp.Description(timeDescription("End of the period to check")),
		),
	)
}

func checkConflictTool() mcp.Tool {
	return mcp.NewTool(ToolCheckConflict,
		mcp.WithDescription("Check whether a proposed event time conflicts with existing events"),
		sessionParam(),
		mcp.WithString("startTime",
			mcp.Required(),
			mcp.Description(timeDescription("Proposed start")),
		),
		mcp.WithString("endTime",
			mcp.Required(),
			mcp.Description(timeDescription("Proposed end")),
		),
	)
}
