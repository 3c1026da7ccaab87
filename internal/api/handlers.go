package api

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2"

	"github.com/roach88/engage/internal/reaction"
	"github.com/roach88/engage/internal/reconcile"
)

type reactionBody struct {
	Kind  string `json:"kind"`
	Label string `json:"label"`
}

type putReactionRequest struct {
	// Reaction is a raw message so an explicit null (remove) can be told
	// apart from a missing field.
	Reaction json.RawMessage `json:"reaction"`
}

type reactionResponse struct {
	ReactionCount int64                   `json:"reactionCount"`
	Kinds         map[reaction.Kind]int64 `json:"kinds"`
	Changed       bool                    `json:"changed"`
}

type reactionsResponse struct {
	Reactions     reaction.Record         `json:"reactions"`
	ReactionCount int64                   `json:"reactionCount"`
	Kinds         map[reaction.Kind]int64 `json:"kinds"`
}

type recountResponse struct {
	ReactionCount int64 `json:"reactionCount"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (s *Server) healthz(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (s *Server) putReaction(c *fiber.Ctx) error {
	var req putReactionRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return reaction.NewInvalid("request body must be JSON")
	}
	if len(req.Reaction) == 0 {
		return reaction.NewInvalid(`"reaction" is required (null removes)`)
	}

	var next *reaction.Reaction
	if string(req.Reaction) != "null" {
		var body reactionBody
		if err := json.Unmarshal(req.Reaction, &body); err != nil {
			return reaction.NewInvalid(`"reaction" must be an object or null`)
		}
		next = &reaction.Reaction{Kind: reaction.Kind(body.Kind), Label: body.Label}
	}
	return s.react(c, next)
}

func (s *Server) deleteReaction(c *fiber.Ctx) error {
	return s.react(c, nil)
}

func (s *Server) react(c *fiber.Ctx, next *reaction.Reaction) error {
	ctx, cancel := s.requestContext(c)
	defer cancel()

	res, err := s.svc.React(ctx, c.Params("postID"), userID(c), next)
	if err != nil {
		return err
	}
	return c.JSON(toReactionResponse(res))
}

func (s *Server) getReactions(c *fiber.Ctx) error {
	ctx, cancel := s.requestContext(c)
	defer cancel()

	postID := c.Params("postID")
	record, err := s.svc.Reactions(ctx, postID)
	if err != nil {
		return err
	}
	tally, err := s.svc.Count(ctx, postID)
	if err != nil {
		return err
	}
	kinds := tally.Kinds
	if kinds == nil {
		kinds = map[reaction.Kind]int64{}
	}
	return c.JSON(reactionsResponse{
		Reactions:     record,
		ReactionCount: tally.Total,
		Kinds:         kinds,
	})
}

func (s *Server) recount(c *fiber.Ctx) error {
	ctx, cancel := s.requestContext(c)
	defer cancel()

	n, err := s.svc.Recount(ctx, c.Params("postID"))
	if err != nil {
		return err
	}
	return c.JSON(recountResponse{ReactionCount: n})
}

func toReactionResponse(res reconcile.Result) reactionResponse {
	kinds := res.Kinds
	if kinds == nil {
		kinds = map[reaction.Kind]int64{}
	}
	return reactionResponse{
		ReactionCount: res.ReactionCount,
		Kinds:         kinds,
		Changed:       res.Changed,
	}
}
