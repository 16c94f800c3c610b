package rpc

import logx "chainjobs/pkg/logx"

func nopLogger() logx.Logger { return logx.Nop() }
