package core

type ctxKey string

const CtxKeyUsername ctxKey = "username"
