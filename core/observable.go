package core

import "sync"

// Observable fans a payload out to every subscriber, synchronously and in
// subscription order. There is no buffering: subscribers only receive
// payloads notified after they subscribed.
type Observable[T any] struct {
	mutex    sync.Mutex
	handlers []func(T)
}

func NewObservable[T any]() *Observable[T] {
	return &Observable[T]{}
}

func (o *Observable[T]) Subscribe(handler func(T)) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	handlers := make([]func(T), len(o.handlers), len(o.handlers)+1)
	copy(handlers, o.handlers)
	o.handlers = append(handlers, handler)
}

func (o *Observable[T]) Notify(payload T) {
	o.mutex.Lock()
	handlers := o.handlers
	o.mutex.Unlock()
	for _, handler := range handlers {
		handler(payload)
	}
}
