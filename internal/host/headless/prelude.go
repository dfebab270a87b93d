package headless

// prelude defines the pieces of the window environment that are simpler to
// express in script than natively
const prelude = `
class Event {
  constructor(type, init) {
    this.type = String(type);
    this.bubbles = !!(init && init.bubbles);
    this.cancelable = !!(init && init.cancelable);
    this.defaultPrevented = false;
    this.target = null;
    this.currentTarget = null;
    this.timeStamp = Date.now();
    this.__stop = false;
  }
  stopPropagation() { this.__stop = true; }
  stopImmediatePropagation() { this.__stop = true; }
  preventDefault() { if (this.cancelable) this.defaultPrevented = true; }
}

class MouseEvent extends Event {}
class KeyboardEvent extends Event {
  constructor(type, init) {
    super(type, init);
    this.key = (init && init.key) || '';
  }
}
class CustomEvent extends Event {
  constructor(type, init) {
    super(type, init);
    this.detail = init && init.detail !== undefined ? init.detail : null;
  }
}
class ErrorEvent extends Event {
  constructor(type, init) {
    super(type, init);
    this.message = (init && init.message) || '';
    this.error = init && init.error;
  }
}

const Node = {
  ELEMENT_NODE: 1,
  TEXT_NODE: 3,
  COMMENT_NODE: 8,
  DOCUMENT_NODE: 9,
};

function queueMicrotask(fn) {
  Promise.resolve().then(() => fn());
}

const XPathResult = {
  ANY_TYPE: 0,
  ORDERED_NODE_SNAPSHOT_TYPE: 7,
  ANY_UNORDERED_NODE_TYPE: 8,
  FIRST_ORDERED_NODE_TYPE: 9,
};
`
