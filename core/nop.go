package core

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

type nopMetrics struct{}

func (nopMetrics) RecordProcessingTime(string, interface{ Seconds() float64 }) {}
func (nopMetrics) RecordThroughput(int64)                                      {}
func (nopMetrics) RecordMemory(int64)                                          {}
func (nopMetrics) RecordError(string, string)                                  {}
