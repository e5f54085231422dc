package redis

import (
	"context"

	"github.com/redis/rueidis"

	"github.com/newsroom-hq/creditledger/internal/db"
)

// Eval runs a Lua script atomically and returns its string reply.
// Scripts are cached by source so repeat calls use EVALSHA.
func (s *Store) Eval(ctx context.Context, src string, keys, args []string) (string, error) {
	reply, err := s.script(src).Exec(ctx, s.client, keys, args).ToString()
	if err != nil {
		return "", &db.Error{Op: db.OpEval, Err: err}
	}
	return reply, nil
}

func (s *Store) script(src string) *rueidis.Lua {
	s.mu.Lock()
	defer s.mu.Unlock()

	if lua, ok := s.scripts[src]; ok {
		return lua
	}
	lua := rueidis.NewLuaScript(src)
	s.scripts[src] = lua
	return lua
}
