package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"

	"opsnotify/internal/notify"
	"opsnotify/internal/storage"
	logx "opsnotify/pkg/logx"
)

func (s *Server) healthz(c *fiber.Ctx) error {
	ok, detail := true, any(nil)
	if s.deps.Health != nil {
		ok, detail = s.deps.Health()
	}
	status := "ok"
	code := fiber.StatusOK
	if !ok {
		status = "degraded"
		code = fiber.StatusServiceUnavailable
	}
	return c.Status(code).JSON(fiber.Map{"status": status, "detail": detail})
}

func (s *Server) postEvent(c *fiber.Ctx) error {
	ev, err := notify.DecodeEvent(c.Body(), s.deps.Now())
	if err != nil {
		s.deps.Ingested("http", "invalid")
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	res, err := s.deps.Notifier.Notify(c.UserContext(), ev)
	if err != nil {
		s.deps.Ingested("http", "error")
		s.log.Warn("event not dispatched", logx.String("event_id", ev.ID), logx.Err(err))
		return fiber.NewError(fiber.StatusServiceUnavailable, "subscription store unavailable")
	}
	s.deps.Ingested("http", "ok")
	return c.JSON(res)
}

func (s *Server) listChannels(c *fiber.Ctx) error {
	cfgs, err := s.deps.Store.ListChannels(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"channels": cfgs})
}

func (s *Server) getChannel(c *fiber.Ctx) error {
	cfg, err := s.deps.Store.GetChannel(c.UserContext(), c.Params("id"))
	if err != nil {
		return storeError(err)
	}
	return c.JSON(cfg)
}

func (s *Server) putChannel(c *fiber.Ctx) error {
	id := strings.TrimSpace(utils.CopyString(c.Params("id")))
	var cfg notify.ChannelConfig
	dec := json.NewDecoder(bytes.NewReader(c.Body()))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "decode channel: "+err.Error())
	}
	if cfg.ID != "" && cfg.ID != id {
		return fiber.NewError(fiber.StatusBadRequest, "channel id does not match path")
	}
	cfg.ID = id
	if err := s.deps.Store.PutChannel(c.UserContext(), cfg); err != nil {
		return storeError(err)
	}
	saved, err := s.deps.Store.GetChannel(c.UserContext(), id)
	if err != nil {
		return storeError(err)
	}
	s.log.Info("channel saved", logx.String("channel_id", id), logx.String("kind", string(saved.Kind)))
	return c.JSON(saved)
}

func (s *Server) deleteChannel(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := s.deps.Store.DeleteChannel(c.UserContext(), id); err != nil {
		return storeError(err)
	}
	s.log.Info("channel deleted", logx.String("channel_id", id))
	return c.SendStatus(fiber.StatusNoContent)
}

func storeError(err error) error {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, storage.ErrInvalid):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	default:
		return err
	}
}
