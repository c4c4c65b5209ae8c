package zmp

import "time"

// Now is the clock used by zmp.ping.
var Now = time.Now

// RegisterBuiltins adds the core zmp.* commands.
func RegisterBuiltins(r *Registry) {
	r.Add("zmp.ping", ping)
	r.Add("zmp.check", check(r))
	r.Add("zmp.support", support(true))
	r.Add("zmp.no-support", support(false))
	r.Add("zmp.input", input)
}

func ping(s Session, args []string) {
	s.SendZMP("zmp.time", Now().UTC().Format(time.DateTime))
}

func check(r *Registry) HandlerFunc {
	return func(s Session, args []string) {
		if len(args) != 2 {
			return
		}
		if r.Match(args[1]) {
			s.SendZMP("zmp.support", args[1])
		} else {
			s.SendZMP("zmp.no-support", args[1])
		}
	}
}

func support(on bool) HandlerFunc {
	return func(s Session, args []string) {
		if len(args) != 2 {
			return
		}
		s.SetSupport(args[1], on)
	}
}

func input(s Session, args []string) {
	if len(args) != 2 {
		return
	}
	s.Inject(args[1])
}
