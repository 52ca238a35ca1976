/*
 * Copyright 2026 The QUICKCOM authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package slotipc

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

var (
	debug = strings.Contains(os.Getenv("DEBUG_SLOTIPC"), "client")

	log logrus.FieldLogger
)

// SetLogger sets the global logger.
func SetLogger(logger logrus.FieldLogger) {
	log = logger
}

func init() {
	logger := logrus.New()
	if debug {
		logger.Level = logrus.DebugLevel
		logger.Debug("slotipc: debug level enabled for client")
	}
	log = logger.WithField("logger", "slotipc/client")
}
